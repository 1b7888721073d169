package domain

import (
	"strconv"
	"strings"
	"time"
)

// Key identifica o cliente limitado (IP, API key, usuário).
type Key string

// TimeUnit é a unidade de contabilidade de quota e spike arrest.
type TimeUnit string

const (
	UnitSecond TimeUnit = "second"
	UnitMinute TimeUnit = "minute"
	UnitHour   TimeUnit = "hour"
	UnitDay    TimeUnit = "day"
	UnitWeek   TimeUnit = "week"
	UnitMonth  TimeUnit = "month"
)

var unitLength = map[TimeUnit]time.Duration{
	UnitSecond: time.Second,
	UnitMinute: time.Minute,
	UnitHour:   time.Hour,
	UnitDay:    24 * time.Hour,
	UnitWeek:   7 * 24 * time.Hour,
}

// ParseTimeUnit normaliza (trim + lower) e valida a unidade.
func ParseTimeUnit(s string) (TimeUnit, error) {
	u := TimeUnit(strings.ToLower(strings.TrimSpace(s)))
	if u == UnitMonth {
		return u, nil
	}
	if _, ok := unitLength[u]; ok {
		return u, nil
	}
	return "", InvalidArgument("unknown time unit %q", s)
}

// Window devolve a janela fixa [start, end) que contém now.
//
// As janelas são alinhadas à época Unix; "month" usa meses de calendário
// contados a partir de janeiro de 1970. interval < 1 é tratado como 1.
func (u TimeUnit) Window(now time.Time, interval int64) (start, end time.Time) {
	if interval < 1 {
		interval = 1
	}
	now = now.UTC()

	if u == UnitMonth {
		m := int64(now.Year()-1970)*12 + int64(now.Month()-1)
		m -= mod(m, interval)
		start = time.Date(1970+int(m/12), time.Month(m%12+1), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, int(interval), 0)
	}

	length := unitLength[u]
	if length == 0 {
		length = time.Second
	}
	length *= time.Duration(interval)
	ns := now.UnixNano()
	startNs := ns - mod(ns, int64(length))
	start = time.Unix(0, startNs).UTC()
	return start, start.Add(length)
}

// Period é a duração nominal de uma unidade (mês = 30 dias).
func (u TimeUnit) Period() time.Duration {
	if u == UnitMonth {
		return 30 * 24 * time.Hour
	}
	if d, ok := unitLength[u]; ok {
		return d
	}
	return time.Second
}

func mod(a, b int64) int64 {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}

// SyncAlways em QuotaPolicy.SyncInterval faz o backend reconciliar com o
// contador compartilhado em toda chamada. Zero significa "use o default".
const SyncAlways time.Duration = -1

// QuotaPolicy é o envelope (sem estado) de uma chamada de quota.
// O estado do contador pertence ao backend.
type QuotaPolicy struct {
	Identifier   string        `json:"identifier" yaml:"identifier"`
	TimeUnit     string        `json:"timeUnit" yaml:"timeUnit"`
	Allow        int64         `json:"allow" yaml:"allow"`
	Interval     int64         `json:"interval,omitempty" yaml:"interval"`
	Weight       int64         `json:"weight,omitempty" yaml:"weight"`
	SyncInterval time.Duration `json:"syncInterval,omitempty" yaml:"syncInterval"`
}

// CounterKey identifica o contador: identifier + timeUnit + interval.
func (p QuotaPolicy) CounterKey() string {
	return p.Identifier + ":" + p.TimeUnit + ":" + strconv.FormatInt(p.Interval, 10)
}

// QuotaResult é a resposta do backend para Apply.
type QuotaResult struct {
	Allowed   bool      `json:"allowed"`
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	Available int64     `json:"available"`
	ExpiresAt time.Time `json:"expiryTime"`
	Timestamp time.Time `json:"timestamp"`
}

// SpikeArrestPolicy limita rajadas numa janela curta, independente da quota.
//
// Allow é a taxa por TimeUnit (second ou minute); a admissão é suavizada,
// uma unidade a cada TimeUnit/Allow.
type SpikeArrestPolicy struct {
	Identifier string `json:"identifier,omitempty" yaml:"identifier"`
	Allow      int64  `json:"allow" yaml:"allow"`
	TimeUnit   string `json:"timeUnit,omitempty" yaml:"timeUnit"`
	Weight     int64  `json:"weight,omitempty" yaml:"weight"`
}

// Interval é o espaçamento entre duas unidades admitidas.
func (p SpikeArrestPolicy) Interval() time.Duration {
	if p.Allow <= 0 {
		return 0
	}
	return TimeUnit(p.TimeUnit).Period() / time.Duration(p.Allow)
}

type SpikeArrestResult struct {
	Allowed bool `json:"allowed"`
	// RetryAfter é 0 quando admitido.
	RetryAfter time.Duration `json:"retryAfter"`
}

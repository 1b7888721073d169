package application

import (
	"sort"
	"sync"
	"time"

	"access-gateway/middleware/access/domain"
)

// Variáveis pré-definidas, somente leitura, semeadas na criação do contexto.
const (
	VarReceivedStartTimestamp = "client.received.start.timestamp"
	VarReceivedEndTimestamp   = "client.received.end.timestamp"
	VarReceivedStartTime      = "client.received.start.time"
	VarReceivedEndTime        = "client.received.end.time"
)

// ReceivedTimeLayout é o formato das variáveis client.received.*.time.
const ReceivedTimeLayout = "Mon Jan 02 2006 15:04:05 GMT-0700 (MST)"

// Context é o mapa de variáveis de uma requisição.
//
// Existe exatamente um por requisição; quem o anexa à requisição é o pacote access.
// É seguro para uso concorrente.
type Context struct {
	mu        sync.RWMutex
	variables map[string]any
	readOnly  map[string]struct{}
}

// NewContext cria o contexto e semeia as quatro variáveis de recebimento
// a partir de uma única amostra de now (início e fim ficam iguais).
func NewContext(now time.Time) *Context {
	c := &Context{
		variables: make(map[string]any),
		readOnly:  make(map[string]struct{}),
	}

	millis := now.UnixMilli()
	text := now.Format(ReceivedTimeLayout)
	c.seed(VarReceivedStartTimestamp, millis)
	c.seed(VarReceivedEndTimestamp, millis)
	c.seed(VarReceivedStartTime, text)
	c.seed(VarReceivedEndTime, text)
	return c
}

func (c *Context) seed(name string, value any) {
	c.variables[name] = value
	c.readOnly[name] = struct{}{}
}

// Get devolve ok=false quando a variável não existe.
func (c *Context) Get(name string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variables[name]
	return v, ok
}

func (c *Context) Set(name string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ro := c.readOnly[name]; ro {
		return domain.ReadOnlyVariable(name)
	}
	c.variables[name] = value
	return nil
}

// Delete não falha se a variável não existir.
func (c *Context) Delete(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ro := c.readOnly[name]; ro {
		return domain.ReadOnlyVariable(name)
	}
	delete(c.variables, name)
	return nil
}

// MarkReadOnly protege name contra escrita e remoção a partir de agora.
func (c *Context) MarkReadOnly(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readOnly[name] = struct{}{}
}

func (c *Context) IsReadOnly(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ro := c.readOnly[name]
	return ro
}

// Names devolve os nomes das variáveis em ordem.
func (c *Context) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.variables))
	for k := range c.variables {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Cache: store local chave -> bytes com TTL e encodings
//   - MemorySpikeArrestStore: token bucket por chave usando golang.org/x/time/rate
//   - RedisSpikeArrestStore / RedisQuotaStore: contadores compartilhados via scripts Lua
//   - RedisMapStore / PostgresMapStore: backends duráveis dos mapas
//   - ChanPool: semáforo simples para limite de chamadas simultâneas ao backend
package infra

// Package access é o runtime de políticas de acesso do gateway.
//
// Visão geral (camadas):
//
//   - domain: contratos, políticas e taxonomia de erros (sem dependência de net/http)
//   - application: componentes Map, Quota, SpikeArrest, Vault e o contexto de variáveis
//   - infra: cache local e backends concretos (memória, Redis, Postgres)
//   - access (este pacote): Registry, variáveis por requisição, middlewares HTTP e rotas de admin
//
// Fluxo no gateway:
//
//  1. VariablesMiddleware anexa o contexto de variáveis à requisição
//  2. SpikeArrestMiddleware e QuotaMiddleware extraem a chave do cliente (IP/header/XFF)
//     e aplicam a política pelo componente do Registry
//  3. Se bloqueado, responde 429 com Retry-After
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como ACCESS_APP_ID, ACCESS_BACKEND, SPIKE_ARREST_RATE e QUOTA_ALLOW.
package access

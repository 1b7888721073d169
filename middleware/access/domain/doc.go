// Package domain define contratos e tipos de domínio do runtime de políticas do gateway:
// cache local, mapas chave-valor duráveis, quota, spike arrest, cofre de segredos
// e contexto de variáveis por requisição.
//
// Este pacote não depende de net/http nem de implementações concretas de backend.
// Os backends (Redis, Postgres, memória) ficam no pacote infra e os casos de uso
// no pacote application.
package domain

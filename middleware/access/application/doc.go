// Package application contém os casos de uso do runtime de políticas:
// Map (cache-aside na leitura, write-through na escrita), KeyValueMap,
// Quota, SpikeArrest, Vault e o contexto de variáveis por requisição.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Toda chamada a backend passa por um BackendCaller, que aplica timeout
// e limite de chamadas simultâneas.
package application

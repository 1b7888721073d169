package domain

import "time"

// PutOptions substitui os argumentos posicionais opcionais do put do cache.
type PutOptions struct {
	// Encoding converte um dado string em bytes (ex: "base64", "hex", "latin1").
	// Vazio significa utf8.
	Encoding string
	// TTL zero usa o TTL padrão do cache (se houver); negativo nunca expira.
	TTL time.Duration
}

// Cache é o store local (um processo) de chave -> bytes que fica na frente dos mapas.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, data any, opts PutOptions) error
	Remove(key string) error
}

package domain

import (
	"context"

	"github.com/jmgilman/go/errors"
)

// Códigos da taxonomia de erros do runtime.
//
// InvalidArgument reaproveita errors.CodeInvalidInput e Timeout reaproveita
// errors.CodeTimeout (classificado como retryable). Os demais são permanentes.
const (
	CodeInvalidArgument    errors.ErrorCode = errors.CodeInvalidInput
	CodeReadOnlyVariable   errors.ErrorCode = "READ_ONLY_VARIABLE"
	CodeBackendUnavailable errors.ErrorCode = "BACKEND_UNAVAILABLE"
	CodeBackend            errors.ErrorCode = "BACKEND_ERROR"
	CodeTimeout            errors.ErrorCode = errors.CodeTimeout
)

// InvalidArgument indica chave, dado ou campo de política malformado.
// É sempre síncrono e nunca chega ao backend.
func InvalidArgument(format string, args ...any) error {
	return errors.Newf(CodeInvalidArgument, format, args...)
}

// ReadOnlyVariable indica escrita ou remoção de uma variável protegida do contexto.
func ReadOnlyVariable(name string) error {
	return errors.WithContext(
		errors.Newf(CodeReadOnlyVariable, "variable %q is read-only", name),
		"variable", name,
	)
}

// BackendUnavailable indica que a operação exige um backend que não foi configurado.
func BackendUnavailable(component string) error {
	return errors.WithContext(
		errors.Newf(CodeBackendUnavailable, "%s requires a backend and none is configured", component),
		"component", component,
	)
}

// BackendError embrulha a falha de um backend preservando a causa original,
// então errors.Is/errors.As continuam enxergando o erro do driver.
// Deadline do contexto vira CodeTimeout.
func BackendError(err error, op string) error {
	if err == nil {
		return nil
	}
	switch CodeOf(err) {
	case CodeTimeout, CodeBackend, CodeBackendUnavailable:
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.WrapWithContext(err, CodeTimeout, op+" timed out", map[string]interface{}{"op": op})
	}
	return errors.WrapWithContext(err, CodeBackend, op+" failed", map[string]interface{}{"op": op})
}

// CodeOf devolve o código do erro (errors.CodeUnknown se não for PlatformError).
func CodeOf(err error) errors.ErrorCode {
	return errors.GetCode(err)
}

func IsInvalidArgument(err error) bool    { return CodeOf(err) == CodeInvalidArgument }
func IsReadOnlyVariable(err error) bool   { return CodeOf(err) == CodeReadOnlyVariable }
func IsBackendUnavailable(err error) bool { return CodeOf(err) == CodeBackendUnavailable }
func IsTimeout(err error) bool            { return CodeOf(err) == CodeTimeout }

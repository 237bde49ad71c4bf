package portal

import (
	"errors"
	"fmt"
)

// Falhas fatais da execução. Use errors.Is para classificar um *Error.
var (
	ErrPortalUnreachable = errors.New("portal inacessível")
	ErrFormNotFound      = errors.New("estrutura esperada não encontrada no html")
	ErrCaptchaExhausted  = errors.New("tentativas de captcha esgotadas")
)

// Error descreve uma falha de autenticação ou de leitura do portal.
type Error struct {
	Kind error  // um dos sentinels acima
	Op   string // etapa, ex: "sso login"
	Err  error  // causa, pode ser nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unreachable(op string, err error) error {
	return &Error{Kind: ErrPortalUnreachable, Op: op, Err: err}
}

func formNotFound(op, what string) error {
	return &Error{Kind: ErrFormNotFound, Op: op, Err: errors.New(what)}
}

func statusError(status int) error {
	return fmt.Errorf("status HTTP %d", status)
}

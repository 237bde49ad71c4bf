package calendar

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMaxPaginations cobre até um ano de diferença.
const DefaultMaxPaginations = 12

var ErrNavigation = errors.New("calendário não convergiu para o mês alvo")

// Pager é o controle de paginação do calendário no navegador.
type Pager interface {
	Header(ctx context.Context) (string, error)
	Next(ctx context.Context) error
	Prev(ctx context.Context) error
}

// Navigate pagina até o cabeçalho mostrar o mês alvo, com no máximo maxPages
// cliques. Retorna quantos cliques foram feitos.
func Navigate(ctx context.Context, p Pager, target Month, maxPages int) (int, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPaginations
	}

	clicks := 0
	for {
		if err := ctx.Err(); err != nil {
			return clicks, err
		}

		text, err := p.Header(ctx)
		if err != nil {
			return clicks, fmt.Errorf("%w: lendo cabeçalho: %v", ErrNavigation, err)
		}
		shown, err := ParseHeader(text)
		if err != nil {
			return clicks, fmt.Errorf("%w: %v", ErrNavigation, err)
		}
		if shown == target {
			return clicks, nil
		}
		if clicks >= maxPages {
			return clicks, fmt.Errorf("%w: mostrando %s após %d cliques, alvo %s", ErrNavigation, shown, clicks, target)
		}

		if shown.Before(target) {
			err = p.Next(ctx)
		} else {
			err = p.Prev(ctx)
		}
		if err != nil {
			return clicks, fmt.Errorf("%w: clicando paginação: %v", ErrNavigation, err)
		}
		clicks++
	}
}

package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindMatchesThroughWrapping(t *testing.T) {
	err := New(ErrValidation, "Empty message")
	wrapped := fmt.Errorf("append: %w", err)

	require.ErrorIs(t, wrapped, ErrValidation)
	require.NotErrorIs(t, wrapped, ErrNotFound)
	require.Equal(t, "Empty message", err.Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{New(ErrValidation, "bad"), http.StatusBadRequest},
		{Newf(ErrNotFound, "user %d", 4), http.StatusNotFound},
		{New(ErrUnauthorized, "no token"), http.StatusUnauthorized},
		{New(ErrForbidden, "not yours"), http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("x: %w", New(ErrTransport, "closed")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, HTTPStatus(tc.err), "error %v", tc.err)
	}
}

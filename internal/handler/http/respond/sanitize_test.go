package respond

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeError(t *testing.T) {
	tests := []struct {
		name  string
		input error
		want  string
	}{
		{
			name:  "postgres DSN",
			input: errors.New("dial tcp: postgres://inkwell:secretpassword@db:5432/inkwell"),
			want:  "dial tcp: postgres://inkwell:****@db:5432/inkwell",
		},
		{
			name:  "redis URL without user",
			input: fmt.Errorf("%w: redis://:hunter2@cache:6379/0", errors.New("rate limit store unavailable")),
			want:  "rate limit store unavailable: redis://:****@cache:6379/0",
		},
		{
			name:  "bearer token",
			input: errors.New("identity rejected Bearer eyJhbGciOiJIUzI1NiJ9.e30.sig"),
			want:  "identity rejected Bearer ****",
		},
		{
			name:  "bare JWT",
			input: errors.New(`token "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ3cml0ZXIifQ.c2ln" expired`),
			want:  `token "****" expired`,
		},
		{
			name:  "libpq key value DSN",
			input: errors.New("connect host=db user=app password=s3cret dbname=inkwell"),
			want:  "connect host=db user=app password=**** dbname=inkwell",
		},
		{
			name:  "query parameter",
			input: errors.New("GET /hook?secret=abc123&x=1 failed"),
			want:  "GET /hook?secret=****&x=1 failed",
		},
		{
			name:  "nothing to mask",
			input: errors.New("post 42 not found"),
			want:  "post 42 not found",
		},
		{
			name:  "nil error",
			input: nil,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeError(tt.input))
		})
	}
}

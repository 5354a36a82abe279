package auth

import "context"

// AuthVerifier verifica un token de sesión y devuelve claims o error. Un
// verifier nil en el router habilita el modo dev (X-Debug-User-ID).
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

package auth

// Claims es la identidad de sesión resuelta del token: el usuario puede ser
// dueño del child o un cuidador invitado; esa distinción la hacen los
// handlers contra los grants, no el token.
type Claims struct {
	UserID string
	Email  string
}

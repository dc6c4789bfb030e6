// Package validation contiene los chequeos sintácticos que corren antes de
// cualquier llamada al identity provider.
package validation

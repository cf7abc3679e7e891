package core

import "net/http"

// AccessChecker decides whether a request may use the admin attendance endpoints.
type AccessChecker interface {
	Verify(r *http.Request) (bool, error)
}

// AllowAll grants every request. Only the school admin uses the dashboard for now.
type AllowAll struct{}

var _ AccessChecker = AllowAll{}

func (AllowAll) Verify(*http.Request) (bool, error) { return true, nil }

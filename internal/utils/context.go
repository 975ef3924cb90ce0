// Package utils provides shared utility functions and constants
package utils

// ContextKeyUser is the echo context key holding the authenticated user name
const ContextKeyUser = "user"

// AuthRealm is the realm announced in basic auth challenges
const AuthRealm = "R2 Dashboard"

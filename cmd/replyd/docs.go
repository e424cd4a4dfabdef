package main

// General API documentation for swaggo. Run `swag init -g cmd/replyd/docs.go`
// to regenerate; the served document lives in internal/httpapi (tag swagger).
//
// @title           replyd API
// @version         1.0
// @description     Conversation inference: sessions, streamed chat replies and model pool controls.
//
// @contact.name   replyd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http

package web

import (
	"embed"
)

// staticFiles holds the pin console page.
//
//go:embed static/*
var staticFiles embed.FS

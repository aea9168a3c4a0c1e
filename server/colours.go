package server

import "net/http"

const (
	colourGreen   = "\033[32m"
	colourBlue    = "\033[34m"
	colourCyan    = "\033[36m"
	colourYellow  = "\033[33m"
	colourMagenta = "\033[35m"
	colourGray    = "\033[90m"
	colourReset   = "\033[0m"
)

// methodColours is used when printing the route table in DEV.
var methodColours = map[string]string{
	http.MethodGet:     colourGreen,
	http.MethodPost:    colourBlue,
	http.MethodPut:     colourCyan,
	http.MethodDelete:  colourYellow,
	http.MethodPatch:   colourMagenta,
	http.MethodOptions: colourGray,
}

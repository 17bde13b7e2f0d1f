package lmtable

// Version is the semantic version of the lmtable library.
// It can be overridden at build time using:
//
//	go build -ldflags "-X github.com/CVDpl/go-lmtable/pkg/lmtable.Version=1.0.1"
var Version = "1.0.0"

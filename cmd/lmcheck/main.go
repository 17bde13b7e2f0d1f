package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CVDpl/go-lmtable/internal/common"
	"github.com/CVDpl/go-lmtable/pkg/lmtable"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/format"
	"github.com/CVDpl/go-lmtable/pkg/lmtable/utils"
)

func checkHeader(path string) (*format.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return format.ReadHeader(f)
}

func main() {
	dir := flag.String("dir", "", "model directory (e.g., /path/models/en-3gram)")
	deep := flag.Bool("deep", false, "also load the table and validate every record")
	flag.Parse()
	if *dir == "" {
		fmt.Println("-dir is required")
		os.Exit(2)
	}

	h, err := checkHeader(filepath.Join(*dir, common.FileModel))
	if err != nil {
		fmt.Println("HEADER:", err)
		os.Exit(1)
	}
	fmt.Printf("HEADER: OK order=%d quantized=%v counts=%v\n", h.MaxLevel, h.Quantized, h.Counts)

	// BLAKE3 verification from model.json if present
	if m, err := format.LoadFromFile(filepath.Join(*dir, common.FileMetadata)); err == nil && len(m.Blake3) > 0 {
		ok := true
		for rel, want := range m.Blake3 {
			if got, err := utils.ComputeBLAKE3File(filepath.Join(*dir, rel)); err != nil || got != want {
				fmt.Printf("BLAKE3 mismatch %s: want=%s got=%s err=%v\n", rel, want, got, err)
				ok = false
			}
		}
		if !ok {
			os.Exit(1)
		}
		fmt.Println("BLAKE3: OK")
	}

	if *deep {
		opts := lmtable.DefaultOptions()
		opts.BigramCacheEntries = 0
		t, err := lmtable.LoadFile(filepath.Join(*dir, common.FileModel), opts)
		if err != nil {
			fmt.Println("RECORDS:", err)
			os.Exit(1)
		}
		t.Close()
		fmt.Println("RECORDS: OK")
	}
}

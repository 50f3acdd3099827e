// Command cardgen mints batches of redemption codes. Codes are written as
// CSV or JSON for handing out, and can optionally be inserted straight into a
// configured store backend.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"wordledger/internal/common"
	"wordledger/internal/store"
)

const codeSuffixLen = 10

type card struct {
	Code  string `json:"code"`
	Words int64  `json:"words"`
}

func main() {
	var (
		count   = flag.Int("n", 10, "number of codes to generate")
		words   = flag.Int64("w", 1000, "face value of each code, in words")
		format  = flag.String("format", "csv", "output format: csv or json")
		outPath = flag.String("out", "", "output file (default stdout)")
		insert  = flag.Bool("insert", false, "insert the codes into the configured backend")

		backend    = flag.String("b", store.BackendSQLite, "store backend for -insert")
		dataDir    = flag.String("f", "./data", "data directory (file backend)")
		sqlitePath = flag.String("q", "wordledger.db", "database file (sqlite backend)")
		dsn        = flag.String("d", "", "database DSN (postgres backend)")
		sheetsURL  = flag.String("e", "", "worksheet API endpoint (sheets backend)")
		sheetsTok  = flag.String("token", "", "worksheet API token (sheets backend)")
	)
	flag.Parse()

	if *count <= 0 || *words <= 0 {
		log.Fatal("both -n and -w must be positive")
	}

	cards := make([]card, 0, *count)
	for i := 0; i < *count; i++ {
		code, err := common.MakeRedemptionCode(*words, codeSuffixLen)
		if err != nil {
			log.Fatalf("generating code: %v", err)
		}
		cards = append(cards, card{Code: code, Words: *words})
	}

	if *insert {
		ctx := context.Background()
		st, err := store.Open(ctx, *backend, store.Options{
			DataDir:        *dataDir,
			SQLitePath:     *sqlitePath,
			DatabaseDSN:    *dsn,
			SheetsEndpoint: *sheetsURL,
			SheetsToken:    *sheetsTok,
		})
		if err != nil {
			log.Fatalf("opening store: %v", err)
		}
		defer st.Close()

		for _, c := range cards {
			if err := st.CreateCode(ctx, c.Code, c.Words); err != nil {
				log.Fatalf("inserting %s: %v", c.Code, err)
			}
		}
		fmt.Fprintf(os.Stderr, "inserted %d codes into %s backend\n", len(cards), *backend)
	}

	out := io.Writer(os.Stdout)
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("creating output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeCards(out, *format, cards); err != nil {
		log.Fatalf("writing output: %v", err)
	}
}

func writeCards(out io.Writer, format string, cards []card) error {
	switch format {
	case "csv":
		w := csv.NewWriter(out)
		if err := w.Write([]string{"code", "words"}); err != nil {
			return err
		}
		for _, c := range cards {
			if err := w.Write([]string{c.Code, strconv.FormatInt(c.Words, 10)}); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cards)
	default:
		return fmt.Errorf("unknown format %q (want csv or json)", format)
	}
}

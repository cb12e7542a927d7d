package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/proof"
)

type output struct {
	Commitment    string      `json:"commitment"`
	CommitmentHex string      `json:"commitment_hex"`
	ReportHash    string      `json:"report_hash"`
	TradeCount    uint64      `json:"trade_count"`
	SymbolCount   uint64      `json:"symbol_count"`
	TotalPnL      string      `json:"total_pnl"`
	Symbols       []symbolPnL `json:"symbols"`
}

type symbolPnL struct {
	Symbol string `json:"symbol"`
	PnL    string `json:"pnl"`
}

// Encode a trade batch offline and print its commitment. Reads a generate
// request from -in, or stdin when -in is empty.
func main() {
	in := flag.String("in", "", "path to a JSON generate request")
	lenient := flag.Bool("lenient", false, "accept unknown order types")
	flag.Parse()

	var r io.Reader = os.Stdin
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			log.Fatalf("Failed to open %s: %v", *in, err)
		}
		defer f.Close()
		r = f
	}

	var req proof.GenerateRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		log.Fatalf("Failed to decode request: %v", err)
	}

	// Generate never touches the chain, store or cache
	svc := proof.NewService(field.NewEncoder(*lenient), nil, nil, nil, nil, nil)
	res, err := svc.Generate(context.Background(), req)
	if err != nil {
		log.Fatalf("Failed to generate proof: %v", err)
	}

	out := output{
		Commitment:    field.Decimal(res.Commitment),
		CommitmentHex: field.Hex(res.Commitment),
		ReportHash:    field.Decimal(res.ReportHash),
		TradeCount:    res.TradeCount,
		SymbolCount:   res.SymbolCount,
		TotalPnL:      signed(field.UnscaleDecimal(res.TotalPnL.Value), res.TotalPnL.IsNegative),
	}
	for _, s := range res.SymbolPnLs {
		out.Symbols = append(out.Symbols, symbolPnL{
			Symbol: s.Name,
			PnL:    signed(field.UnscaleDecimal(s.Magnitude), s.IsNegative),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func signed(v string, negative bool) string {
	if negative && v != "0" {
		return "-" + v
	}
	return v
}

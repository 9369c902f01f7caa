// Command moderate runs one moderation flow from the command line and
// prints the result as JSON.
//
//	moderate -details "Red cotton T-shirt" -product front.jpg -product back.jpg -customer review.jpg
//	moderate -details "..." -product front.jpg -customer review.jpg -violation "Image should not be blurred"
//	moderate -draft -details "..." -product front.jpg -customer review.jpg
//
// Images may be file paths, http(s) URLs or data URIs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/raine/review-moderator/config"
	"github.com/raine/review-moderator/internal/media"
	"github.com/raine/review-moderator/internal/moderation"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ", ") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		details    = flag.String("details", "", "product details")
		customer   = flag.String("customer", "", "customer review image (path, URL or data URI)")
		draft      = flag.Bool("draft", false, "draft a moderation prompt instead of moderating")
		verbose    = flag.Bool("v", false, "debug logging")
		products   listFlag
		violations listFlag
	)
	flag.Var(&products, "product", "product image (repeatable)")
	flag.Var(&violations, "violation", "identified violation to explain (repeatable)")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *details == "" || *customer == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -details <text> -product <image> [-product <image>...] -customer <image> [-violation <text>...] [-draft]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fatal("invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fetcher := media.NewFetcher()
	productURIs := make([]string, 0, len(products))
	for _, ref := range products {
		uri, err := fetcher.Resolve(ctx, ref)
		if err != nil {
			fatal("failed to load product image %s: %v", ref, err)
		}
		productURIs = append(productURIs, uri)
	}
	customerURI, err := fetcher.Resolve(ctx, *customer)
	if err != nil {
		fatal("failed to load customer image %s: %v", *customer, err)
	}

	provider, err := config.NewProvider(ctx, cfg)
	if err != nil {
		fatal("failed to initialize model provider: %v", err)
	}
	svc := moderation.NewService(
		moderation.NewInvoker(provider, cfg.InvokerConfig()),
		moderation.WithDraftMode(cfg.DraftMode),
	)

	var result any
	switch {
	case *draft:
		result, err = svc.DraftPrompt(ctx, moderation.DraftPromptRequest{
			ProductDetails:      *details,
			ProductImages:       productURIs,
			CustomerReviewImage: customerURI,
		})
	case len(violations) > 0:
		result, err = svc.ExplainRejections(ctx, moderation.ExplanationRequest{
			ProductDetails:       *details,
			ProductImages:        productURIs,
			CustomerReviewImage:  customerURI,
			IdentifiedViolations: violations,
		})
	default:
		result, err = svc.Moderate(ctx, moderation.ModerationRequest{
			ProductDetails: *details,
			ProductImages:  productURIs,
			CustomerImage:  customerURI,
		})
	}
	if err != nil {
		os.Exit(reportError(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fatal("failed to write result: %v", err)
	}
}

// reportError prints err and returns the exit code for its kind.
func reportError(err error) int {
	var (
		inputErr  *moderation.InputValidationError
		outputErr *moderation.ModelOutputError
	)
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	switch {
	case errors.As(err, &inputErr):
		return 2
	case errors.As(err, &outputErr):
		if outputErr.Raw != "" {
			fmt.Fprintf(os.Stderr, "Model response: %s\n", outputErr.Raw)
		}
		return 3
	default:
		return 1
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

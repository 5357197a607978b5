package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"restock-monitor/config"
	"restock-monitor/extractor"
	"restock-monitor/internal/types"
	"restock-monitor/store"
	"restock-monitor/utils"
)

// One-shot product discovery over plain HTTP. Fetches the given pages,
// extracts products from product and listing markup, and prints them as
// JSON or saves them straight into the monitored list.
func main() {
	// Load .env file if present
	_ = godotenv.Load()

	var (
		urlFlag    = flag.String("url", "", "Single page URL to scan")
		urlsFlag   = flag.String("urls", "", "Comma-separated list of page URLs to scan")
		outputFlag = flag.String("output", "", "Output file path (default: stdout)")
		saveFlag   = flag.Bool("save", false, "Save discovered products into the monitored list")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if *urlFlag == "" && *urlsFlag == "" {
		log.Fatal("Either --url or --urls flag is required")
	}
	if *urlFlag != "" && *urlsFlag != "" {
		log.Fatal("Cannot use both --url and --urls flags")
	}

	var urls []string
	if *urlFlag != "" {
		urls = []string{strings.TrimSpace(*urlFlag)}
	} else {
		urls = strings.Split(*urlsFlag, ",")
		for i, u := range urls {
			urls[i] = strings.TrimSpace(u)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	fetcher := utils.NewFetcher(cfg.Fetch, cfg.Browser.UserAgent, logger)
	ext := extractor.New(logger)
	classifier := extractor.NewClassifier(cfg.Site.ProductMarker, cfg.Site.CollectionMarker)

	startTime := time.Now()
	logger.Infof("Scanning %d pages", len(urls))

	var products []types.Product
	for _, url := range urls {
		found, err := scanPage(ctx, fetcher, ext, classifier, cfg.Site.BaseURL, url)
		if err != nil {
			logger.Warnf("Failed to scan %s: %v", url, err)
			continue
		}
		logger.Infof("%s: found %d products", url, len(found))
		products = append(products, found...)
	}

	logger.Infof("Scan completed in %v, %d products total", time.Since(startTime), len(products))

	if *saveFlag {
		db, err := store.Open(cfg.Storage.DSN, logger)
		if err != nil {
			logger.Fatalf("Failed to open storage: %v", err)
		}
		defer db.Close()

		for _, product := range products {
			if err := db.SaveProduct(product); err != nil {
				logger.Warnf("Failed to save %s: %v", product.URL, err)
			}
		}
		logger.Infof("Saved %d products to the monitored list", len(products))
		return
	}

	jsonData, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		logger.Fatalf("Failed to marshal results: %v", err)
	}

	if *outputFlag != "" {
		if err := os.WriteFile(*outputFlag, jsonData, 0644); err != nil {
			logger.Fatalf("Failed to write output file: %v", err)
		}
		logger.Infof("Results written to: %s", *outputFlag)
	} else {
		fmt.Println(string(jsonData))
	}
}

func scanPage(ctx context.Context, fetcher *utils.Fetcher, ext *extractor.Extractor,
	classifier *extractor.Classifier, baseURL, url string) ([]types.Product, error) {
	body, err := fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	switch classifier.Classify(url, doc) {
	case types.PageProduct:
		if p := ext.ExtractProduct(url, doc); p != nil {
			return []types.Product{*p}, nil
		}
		return nil, fmt.Errorf("no product found on page")
	case types.PageListing:
		return ext.ExtractListing(baseURL, doc), nil
	default:
		// Home and unknown pages still get a listing scan; collection
		// links on the home page are followed one level deep.
		if products := ext.ExtractListing(baseURL, doc); len(products) > 0 {
			return products, nil
		}
		links := ext.ExtractCollectionLinks(baseURL, doc)
		var products []types.Product
		for _, link := range links {
			found, err := scanCollection(ctx, fetcher, ext, baseURL, link)
			if err != nil {
				continue
			}
			products = append(products, found...)
		}
		return products, nil
	}
}

func scanCollection(ctx context.Context, fetcher *utils.Fetcher, ext *extractor.Extractor,
	baseURL, url string) ([]types.Product, error) {
	body, err := fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return ext.ExtractListing(baseURL, doc), nil
}

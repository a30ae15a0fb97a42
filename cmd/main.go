package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bivunote/billing-gateway/billing"
	"github.com/bivunote/billing-gateway/billing/cache"
	"github.com/bivunote/billing-gateway/billing/memory"
)

// Drives one scripted purchase end to end against the in-memory backend.
func main() {
	_ = godotenv.Load()

	productID := os.Getenv("PRODUCT_ID")
	if productID == "" {
		productID = "coin_100"
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}

	backend := memory.NewBackend()
	backend.AddProduct(billing.BackendProduct{
		ID:          productID,
		Title:       "100 Coins",
		Description: "A pouch of 100 coins",
		Offer: &billing.OfferDetails{
			FormattedPrice:    "$0.99",
			PriceAmountMicros: 990000,
			PriceCurrencyCode: "USD",
		},
	})
	backend.CompleteOnLaunch()

	conn := billing.NewConnection(logger, backend)
	conn.Connect()
	defer conn.Close()

	consumer := billing.NewConsumer(logger, backend)
	coordinator := billing.NewCoordinator(logger, conn, backend, consumer, memory.NewInMemory())
	catalog := cache.NewInCache(billing.NewCatalog(logger, conn, backend), time.Minute)
	restorer := billing.NewRestorer(logger, conn, backend)

	server := billing.NewServer(logger, conn, catalog, coordinator, restorer, func() billing.Activity {
		return nil // no UI in the demo
	})

	ctx := context.Background()

	ready, err := server.Initialize(ctx)
	fmt.Println("Initialize:", ready, err)

	products, err := server.GetProducts(ctx, &billing.GetProductsRequest{ProductIDs: []string{productID}})
	fmt.Println("GetProducts:", products, err)

	purchase, err := server.Purchase(ctx, &billing.PurchaseRequest{ProductID: productID})
	fmt.Println("Purchase:", purchase, err)

	restored, err := server.RestorePurchases(ctx)
	fmt.Println("RestorePurchases:", restored, err)
}

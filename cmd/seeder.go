package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/content-payments/internal/auth"
	"github.com/frahmantamala/content-payments/internal/catalog"
	catalogPostgres "github.com/frahmantamala/content-payments/internal/catalog/postgres"
	catalogDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/catalog"
	userDatamodel "github.com/frahmantamala/content-payments/internal/core/datamodel/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the catalogue and a demo buyer, then print a bearer token for that buyer.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		if clearData {
			for _, table := range []string{"webhook_events", "library_entries", "payment_bundle_items", "payments", "items", "users"} {
				if err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table)).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing data")
		}

		sampler := catalog.NewItem("Free Sampler", decimal.Zero)
		sampler.IsFree = true
		draft := catalog.NewItem("Unreleased Draft", decimal.RequireFromString("7.99"))
		draft.IsVisible = false
		items := []*catalog.Item{
			catalog.NewItem("The Go Programming Language", decimal.RequireFromString("4.99")),
			catalog.NewItem("Systems Programming Notes", decimal.RequireFromString("3.49")),
			catalog.NewItem("Networking From Scratch", decimal.RequireFromString("5.99")),
			sampler,
			draft,
		}

		ctx := cmd.Context()
		itemRepo := catalogPostgres.NewItemRepository(db)
		for _, item := range items {
			var existing catalogDatamodel.Item
			err := db.WithContext(ctx).Where("title = ?", item.Title).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Fatalf("failed to look up item %s: %v", item.Title, err)
			}
			if err := itemRepo.Create(ctx, catalog.ToDataModel(item)); err != nil {
				log.Fatalf("failed to insert item %s: %v", item.Title, err)
			}
			fmt.Printf("Seeded item: %s (%s)\n", item.Title, item.Price.StringFixed(2))
		}

		buyer := userDatamodel.User{Email: "reader@mail.com", Name: "Demo Reader", SubscriptionStatus: "none"}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&buyer).Error; err != nil {
			log.Fatalf("failed to insert demo user: %v", err)
		}
		if err := db.Where("email = ?", buyer.Email).First(&buyer).Error; err != nil {
			log.Fatalf("failed to look up demo user: %v", err)
		}
		fmt.Println("Seeded demo user:", buyer.Email)

		token, err := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration).
			GenerateAccessToken(buyer.ID, buyer.Email)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		fmt.Printf("Bearer token for %s:\n%s\n", buyer.Email, token)
	},
}

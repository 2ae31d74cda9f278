package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"licensepay.backend/internal/config"
	"licensepay.backend/internal/domain/entities"
	"licensepay.backend/internal/infrastructure/repositories"
)

func main() {
	productRef := flag.String("product-ref", "", "product ref to seed inventory for (required)")
	count := flag.Int("count", 1, "number of license rows to generate")
	keyLen := flag.Int("key-len", 16, "random license key length in hex characters (must be even)")
	instructions := flag.String("instructions", "", "redemption instructions stamped on every generated license")
	flag.Parse()

	if *productRef == "" {
		log.Fatal("product-ref is required")
	}
	if *count <= 0 {
		log.Fatalf("invalid count: %d (must be positive)", *count)
	}
	if *keyLen <= 0 || *keyLen%2 != 0 {
		log.Fatalf("invalid key-len: %d (must be positive and even)", *keyLen)
	}

	cfg := config.Load()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.Database.URL(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{PrepareStmt: false})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	licenseRepo := repositories.NewLicenseRepository(db)

	licenses := make([]*entities.License, 0, *count)
	for i := 0; i < *count; i++ {
		key, err := generateLicenseKey(*keyLen)
		if err != nil {
			log.Fatalf("failed to generate license key: %v", err)
		}
		licenses = append(licenses, &entities.License{
			ID:           uuid.New(),
			ProductRef:   *productRef,
			LicenseKey:   key,
			Status:       entities.LicenseStatusAvailable,
			Instructions: *instructions,
		})
	}

	if err := licenseRepo.BulkCreate(context.Background(), licenses); err != nil {
		log.Fatalf("failed to persist generated licenses: %v", err)
	}

	fmt.Printf("Seeded %d license(s) for product %s\n", len(licenses), *productRef)
}

func generateLicenseKey(hexLen int) (string, error) {
	b := make([]byte, hexLen/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

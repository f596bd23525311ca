package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"campusbus-backend/internal/database"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := database.Connect(dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("Connected to database successfully")

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully!")

	result, err := database.SummarizeLocations(db)
	if err != nil {
		log.Fatalf("Failed to query summary: %v", err)
	}

	fmt.Println("\n============================================================")
	fmt.Println("LOCATION STORE SUMMARY")
	fmt.Println("============================================================")
	fmt.Printf("Vehicles recorded:       %d\n", result.TotalVehicles)
	fmt.Printf("Currently broadcasting:  %d\n", result.Broadcasting)
	fmt.Printf("History records:         %d\n", result.HistoryRecords)
	fmt.Println("============================================================")
}

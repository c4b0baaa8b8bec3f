// Command seed loads a small sportscar catalog into the configured store.
// Re-running it updates the same cars in place.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sportscarhub/storefront/internal/config"
	"github.com/sportscarhub/storefront/internal/domain"
	"github.com/sportscarhub/storefront/internal/logger"
	"github.com/sportscarhub/storefront/internal/repository"
)

func main() {
	configPath := flag.String("config", os.Getenv("STOREFRONT_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	log := logger.New("storefront-seed", cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := repository.Open(ctx, repository.OpenOptions{
		Driver: cfg.Store.Driver,
		Postgres: &repository.Credentials{
			Host:     cfg.Store.Host,
			Port:     cfg.Store.Port,
			User:     cfg.Store.User,
			Password: cfg.Store.Password,
			DBName:   cfg.Store.DBName,
			SSLMode:  cfg.Store.SSLMode,
		},
		SQLiteDSN:     cfg.Store.SQLitePath,
		MongoURI:      cfg.Store.MongoURI,
		MongoDatabase: cfg.Store.MongoDatabase,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	cars := sampleCars(time.Now().UTC().Truncate(time.Microsecond))
	if err := store.UpsertCars(ctx, cars); err != nil {
		log.Error().Err(err).Msg("failed to seed catalog")
		return
	}
	log.Info().Int("cars", len(cars)).Msg("catalog seeded")
}

func sampleCars(now time.Time) []*domain.Car {
	return []*domain.Car{
		{
			ID: "porsche-911-gt3-2023", Make: "Porsche", Model: "911 GT3", Year: 2023,
			Price: decimal.RequireFromString("161100.00"), Mileage: 1200, Color: "Shark Blue",
			Engine: "4.0L flat-6", Horsepower: 502, Transmission: "7-speed PDK",
			ImageURL:    "/images/cars/porsche-911-gt3.jpg",
			Description: "Naturally aspirated track car with a 9,000 rpm redline.",
			CreatedAt:   now,
		},
		{
			ID: "porsche-718-cayman-gt4-2022", Make: "Porsche", Model: "718 Cayman GT4", Year: 2022,
			Price: decimal.RequireFromString("106500.00"), Mileage: 8400, Color: "Guards Red",
			Engine: "4.0L flat-6", Horsepower: 414, Transmission: "6-speed manual",
			ImageURL:    "/images/cars/porsche-718-gt4.jpg",
			Description: "Mid-engine balance with a manual gearbox.",
			CreatedAt:   now,
		},
		{
			ID: "ferrari-f8-tributo-2021", Make: "Ferrari", Model: "F8 Tributo", Year: 2021,
			Price: decimal.RequireFromString("276550.00"), Mileage: 5100, Color: "Rosso Corsa",
			Engine: "3.9L twin-turbo V8", Horsepower: 710, Transmission: "7-speed dual-clutch",
			ImageURL:    "/images/cars/ferrari-f8.jpg",
			Description: "The last mid-engine V8 Ferrari without hybrid assistance.",
			CreatedAt:   now,
		},
		{
			ID: "ferrari-296-gtb-2023", Make: "Ferrari", Model: "296 GTB", Year: 2023,
			Price: decimal.RequireFromString("338250.00"), Mileage: 900, Color: "Giallo Modena",
			Engine: "3.0L twin-turbo V6 hybrid", Horsepower: 819, Transmission: "8-speed dual-clutch",
			ImageURL:    "/images/cars/ferrari-296.jpg",
			Description: "Plug-in hybrid V6 with 25 km of electric range.",
			CreatedAt:   now,
		},
		{
			ID: "lamborghini-huracan-evo-2022", Make: "Lamborghini", Model: "Huracan EVO", Year: 2022,
			Price: decimal.RequireFromString("261274.00"), Mileage: 3300, Color: "Verde Mantis",
			Engine: "5.2L V10", Horsepower: 631, Transmission: "7-speed dual-clutch",
			ImageURL:    "/images/cars/lamborghini-huracan.jpg",
			Description: "All-wheel drive with rear-wheel steering.",
			CreatedAt:   now,
		},
		{
			ID: "chevrolet-corvette-z06-2024", Make: "Chevrolet", Model: "Corvette Z06", Year: 2024,
			Price: decimal.RequireFromString("112700.00"), Mileage: 150, Color: "Torch Red",
			Engine: "5.5L flat-plane V8", Horsepower: 670, Transmission: "8-speed dual-clutch",
			ImageURL:    "/images/cars/corvette-z06.jpg",
			Description: "Flat-plane crank V8 in a mid-engine American chassis.",
			CreatedAt:   now,
		},
	}
}

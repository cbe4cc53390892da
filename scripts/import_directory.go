package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"agendazap/internal/database"
	"agendazap/internal/domain"
	"agendazap/internal/models"
	"agendazap/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type directoryProfessional struct {
	models.Professional `yaml:",inline"`
	Windows             map[string][]string `yaml:"windows"`
}

type directoryTenant struct {
	models.Tenant `yaml:",inline"`
	Professionals []directoryProfessional `yaml:"professionals"`
}

type DirectoryConfig struct {
	Tenants []directoryTenant `yaml:"tenants"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		dirPath = flag.String("directory", "configs/directory.yaml", "path to directory.yaml")
		dbPath  = flag.String("db", "./data/agendazap.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*dirPath)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}
	var cfg DirectoryConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse directory: %w", err)
	}
	if len(cfg.Tenants) == 0 {
		return fmt.Errorf("no tenants in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	calendar := service.NewCalendar(db, &logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var tenants, professionals, windows int
	for i := range cfg.Tenants {
		t := &cfg.Tenants[i]
		tenant, created, err := upsertTenant(ctx, db, &t.Tenant)
		if err != nil {
			return err
		}
		if created {
			tenants++
		}

		for j := range t.Professionals {
			p := &t.Professionals[j]
			p.TenantID = tenant.ID
			prof, created, err := upsertProfessional(ctx, db, &p.Professional)
			if err != nil {
				return err
			}
			if created {
				professionals++
			}

			for day, times := range p.Windows {
				weekday, err := models.ParseWeekday(day)
				if err != nil {
					return fmt.Errorf("%s: %w", p.Name, err)
				}
				if err := calendar.SetWindow(ctx, prof.ID, weekday, times); err != nil {
					return fmt.Errorf("%s %s: %w", p.Name, weekday, err)
				}
				windows++
			}
		}
	}

	fmt.Printf("done: tenants=%d professionals=%d windows=%d\n", tenants, professionals, windows)
	return nil
}

func upsertTenant(ctx context.Context, db *database.DB, t *models.Tenant) (*models.Tenant, bool, error) {
	if t.ID != 0 {
		existing, err := db.GetTenant(ctx, t.ID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("get tenant %d: %w", t.ID, err)
		}
	}
	if err := db.CreateTenant(ctx, t); err != nil {
		return nil, false, fmt.Errorf("create tenant %s: %w", t.Name, err)
	}
	return t, true, nil
}

func upsertProfessional(ctx context.Context, db *database.DB, p *models.Professional) (*models.Professional, bool, error) {
	if p.Phone != "" {
		existing, err := db.GetProfessionalByPhone(ctx, p.TenantID, p.Phone)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("get professional %s: %w", p.Name, err)
		}
	}
	if err := db.CreateProfessional(ctx, p); err != nil {
		return nil, false, fmt.Errorf("create professional %s: %w", p.Name, err)
	}
	return p, true, nil
}

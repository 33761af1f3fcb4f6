package db

import (
	"net/url"
	"strings"
	"testing"

	"github.com/eocert/console/config"
)

func TestURL(t *testing.T) {
	raw := URL(config.DatabaseConfig{Host: "db", Port: 5433, User: "eo", Password: "p@ss word", DBName: "console", UseSSL: true})
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	if u.Scheme != "postgres" || u.Host != "db:5433" || u.Path != "/console" {
		t.Fatalf("unexpected url %q", raw)
	}
	if pw, _ := u.User.Password(); pw != "p@ss word" {
		t.Fatalf("expected password to round trip, got %q", pw)
	}
	if u.Query().Get("sslmode") != "require" {
		t.Fatalf("expected sslmode=require, got %q", u.Query().Get("sslmode"))
	}
}

func TestMigrationsAreEmbeddedInPairs(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected matching up and down migrations, got %d up and %d down", ups, downs)
	}
}

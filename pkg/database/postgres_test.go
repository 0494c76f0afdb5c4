package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/tahfidz-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "tahfidz", Password: "secret", Name: "tahfidz", SSLMode: "require"})
	assert.Equal(t, "host=db port=5433 user=tahfidz password=secret dbname=tahfidz sslmode=require", dsn)
}

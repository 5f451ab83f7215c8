package testutil

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
)

// SetupTestDB opens the integration database. It expects a MySQL database
// called kitchenops_test on localhost:3306 unless TEST_DB_DSN is set, and
// skips the test when nothing answers.
func SetupTestDB(t *testing.T) *sql.DB {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = "root:@tcp(localhost:3306)/kitchenops_test?parseTime=true"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("test database not available: %v", err)
	}

	return db
}

// CleanupTestDB empties every table and closes the connection.
func CleanupTestDB(t *testing.T, db *sql.DB) {
	if db == nil {
		return
	}

	tables := []string{
		"OrderAudit", "OrderItems", "Orders", "DiningTables", "KitchenStations",
		"PrintJobs", "Printers", "Notifications", "NotificationDevices",
	}
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			t.Logf("failed to clean table %s: %v", table, err)
		}
	}

	db.Close()
}

// SetupTestTables creates the schema the repositories expect.
func SetupTestTables(t *testing.T, db *sql.DB) {
	tables := []struct {
		name  string
		query string
	}{
		{"Orders", `
		CREATE TABLE IF NOT EXISTS Orders (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			number VARCHAR(20) NOT NULL,
			branchId VARCHAR(36) NOT NULL,
			tableId VARCHAR(36),
			serverId VARCHAR(36) NOT NULL DEFAULT '',
			serviceType VARCHAR(20) NOT NULL,
			priority VARCHAR(10) NOT NULL DEFAULT 'NORMAL',
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			paymentStatus VARCHAR(20) NOT NULL DEFAULT 'UNPAID',
			subtotal DECIMAL(12,2) NOT NULL DEFAULT 0,
			tax DECIMAL(12,2) NOT NULL DEFAULT 0,
			total DECIMAL(12,2) NOT NULL DEFAULT 0,
			taxRate DECIMAL(6,4) NOT NULL DEFAULT 0,
			guestCount INT NOT NULL DEFAULT 0,
			notes TEXT NOT NULL,
			cancellationReason VARCHAR(255) NOT NULL DEFAULT '',
			createdAt DATETIME(3) NOT NULL,
			updatedAt DATETIME(3) NOT NULL,
			confirmedAt DATETIME(3),
			preparingAt DATETIME(3),
			readyAt DATETIME(3),
			servedAt DATETIME(3),
			completedAt DATETIME(3),
			cancelledAt DATETIME(3),
			version INT NOT NULL DEFAULT 0,
			INDEX idx_branch_status (branchId, status),
			INDEX idx_branch_created (branchId, createdAt)
		)`},
		{"OrderItems", `
		CREATE TABLE IF NOT EXISTS OrderItems (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			orderId VARCHAR(36) NOT NULL,
			productId VARCHAR(36) NOT NULL DEFAULT '',
			productName VARCHAR(255) NOT NULL,
			quantity INT NOT NULL DEFAULT 1,
			unitPrice DECIMAL(12,2) NOT NULL,
			subtotal DECIMAL(12,2) NOT NULL DEFAULT 0,
			tax DECIMAL(12,2) NOT NULL DEFAULT 0,
			total DECIMAL(12,2) NOT NULL DEFAULT 0,
			stationId VARCHAR(36) NOT NULL DEFAULT '',
			course VARCHAR(20) NOT NULL DEFAULT 'MAIN_COURSE',
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			seatNumber INT,
			modifiers JSON,
			specialInstructions TEXT NOT NULL,
			notes TEXT NOT NULL,
			createdAt DATETIME(3) NOT NULL,
			sentToKitchenAt DATETIME(3),
			startedPreparingAt DATETIME(3),
			completedAt DATETIME(3),
			FOREIGN KEY (orderId) REFERENCES Orders(id) ON DELETE CASCADE,
			INDEX idx_order (orderId)
		)`},
		{"OrderAudit", `
		CREATE TABLE IF NOT EXISTS OrderAudit (
			seq BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			id VARCHAR(36) NOT NULL UNIQUE,
			orderId VARCHAR(36) NOT NULL,
			timestamp DATETIME(3) NOT NULL,
			actor VARCHAR(100) NOT NULL,
			action VARCHAR(30) NOT NULL,
			beforeValue VARCHAR(255) NOT NULL,
			afterValue VARCHAR(255) NOT NULL,
			note TEXT NOT NULL,
			FOREIGN KEY (orderId) REFERENCES Orders(id) ON DELETE CASCADE,
			INDEX idx_order (orderId)
		)`},
		{"DiningTables", `
		CREATE TABLE IF NOT EXISTS DiningTables (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			branchId VARCHAR(36) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'AVAILABLE',
			updatedAt DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
		)`},
		{"KitchenStations", `
		CREATE TABLE IF NOT EXISTS KitchenStations (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			branchId VARCHAR(36) NOT NULL,
			name VARCHAR(100) NOT NULL,
			defaultPrepTime INT NOT NULL DEFAULT 15,
			warningThreshold INT NOT NULL DEFAULT 10,
			criticalThreshold INT NOT NULL DEFAULT 5,
			displayOrder INT NOT NULL DEFAULT 0,
			autoPrint TINYINT(1) NOT NULL DEFAULT 1,
			printerId VARCHAR(36),
			active TINYINT(1) NOT NULL DEFAULT 1,
			createdAt DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
			updatedAt DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
			INDEX idx_branch (branchId)
		)`},
		{"Printers", `
		CREATE TABLE IF NOT EXISTS Printers (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			branchId VARCHAR(36) NOT NULL,
			name VARCHAR(100) NOT NULL,
			connectionType VARCHAR(20) NOT NULL,
			address VARCHAR(255) NOT NULL DEFAULT '',
			port INT NOT NULL DEFAULT 0,
			capabilities JSON,
			active TINYINT(1) NOT NULL DEFAULT 1,
			status VARCHAR(20) NOT NULL DEFAULT 'UNKNOWN',
			totalJobs INT NOT NULL DEFAULT 0,
			successfulJobs INT NOT NULL DEFAULT 0,
			failedJobs INT NOT NULL DEFAULT 0,
			lastError TEXT NOT NULL,
			lastErrorAt DATETIME(3),
			lastPrintAt DATETIME(3),
			lastHealthCheckAt DATETIME(3),
			stationMappings JSON,
			createdAt DATETIME(3) NOT NULL,
			updatedAt DATETIME(3) NOT NULL,
			INDEX idx_branch (branchId)
		)`},
		{"PrintJobs", `
		CREATE TABLE IF NOT EXISTS PrintJobs (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			branchId VARCHAR(36) NOT NULL,
			orderId VARCHAR(36),
			printerId VARCHAR(36) NOT NULL,
			stationId VARCHAR(36),
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			priority VARCHAR(10) NOT NULL DEFAULT 'NORMAL',
			content MEDIUMTEXT NOT NULL,
			copies INT NOT NULL DEFAULT 1,
			retryCount INT NOT NULL DEFAULT 0,
			maxRetries INT NOT NULL DEFAULT 3,
			nextRetryAt DATETIME(3),
			errorCode VARCHAR(50) NOT NULL DEFAULT '',
			errorMessage TEXT NOT NULL,
			durationMs BIGINT,
			createdAt DATETIME(3) NOT NULL,
			startedAt DATETIME(3),
			completedAt DATETIME(3),
			updatedAt DATETIME(3) NOT NULL,
			INDEX idx_printer_status (printerId, status),
			INDEX idx_branch (branchId)
		)`},
		{"NotificationDevices", `
		CREATE TABLE IF NOT EXISTS NotificationDevices (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			branchId VARCHAR(36) NOT NULL,
			name VARCHAR(100) NOT NULL,
			type VARCHAR(20) NOT NULL,
			address VARCHAR(255) NOT NULL DEFAULT '',
			active TINYINT(1) NOT NULL DEFAULT 1,
			createdAt DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
			INDEX idx_branch (branchId)
		)`},
		{"Notifications", `
		CREATE TABLE IF NOT EXISTS Notifications (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			branchId VARCHAR(36) NOT NULL,
			deviceId VARCHAR(36) NOT NULL,
			orderId VARCHAR(36),
			message VARCHAR(500) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			retryCount INT NOT NULL DEFAULT 0,
			maxRetries INT NOT NULL DEFAULT 3,
			lastError TEXT NOT NULL,
			expiresAt DATETIME(3) NOT NULL,
			sentAt DATETIME(3),
			acknowledgedAt DATETIME(3),
			createdAt DATETIME(3) NOT NULL,
			updatedAt DATETIME(3) NOT NULL,
			INDEX idx_status_expires (status, expiresAt)
		)`},
	}

	for _, tbl := range tables {
		if _, err := db.Exec(tbl.query); err != nil {
			t.Logf("failed to create table %s: %v", tbl.name, err)
		}
	}
}

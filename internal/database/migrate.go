package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order.  Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id              BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		owner_id        BIGINT UNSIGNED NULL,
		title           VARCHAR(200) NOT NULL,
		description     TEXT NULL,
		price_cents     BIGINT NOT NULL DEFAULT 0,
		country         VARCHAR(100) NOT NULL,
		category        ENUM('HOTEL','FLIGHT','EVENT') NOT NULL,
		address         VARCHAR(255) NOT NULL DEFAULT '',
		city            VARCHAR(100) NOT NULL DEFAULT '',
		star_rating     TINYINT NOT NULL DEFAULT 0,
		total_rooms     INT NOT NULL DEFAULT 0,
		available_from  DATE NULL,
		available_to    DATE NULL,
		airline         VARCHAR(100) NOT NULL DEFAULT '',
		departure       VARCHAR(100) NOT NULL DEFAULT '',
		arrival         VARCHAR(100) NOT NULL DEFAULT '',
		departure_time  DATETIME NULL,
		arrival_time    DATETIME NULL,
		seat_capacity   INT NOT NULL DEFAULT 0,
		venue           VARCHAR(255) NOT NULL DEFAULT '',
		event_date      DATETIME NULL,
		ticket_capacity INT NOT NULL DEFAULT 0,
		units_committed INT NOT NULL DEFAULT 0,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_listings_owner (owner_id),
		KEY idx_listings_category (category)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		listing_id BIGINT UNSIGNED NOT NULL,
		category   ENUM('HOTEL','FLIGHT','EVENT') NOT NULL,
		status     ENUM('CONFIRMED','CANCELLED') NOT NULL,
		booked_at  DATETIME NOT NULL,
		check_in   DATE NULL,
		check_out  DATE NULL,
		num_guests INT NOT NULL,
		updated_at DATETIME NOT NULL,
		KEY idx_bookings_inventory (listing_id, status, category),
		KEY idx_bookings_user (user_id, booked_at),
		CONSTRAINT fk_bookings_listing FOREIGN KEY (listing_id) REFERENCES listings (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS payments (
		id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		booking_id     BIGINT UNSIGNED NOT NULL,
		amount_cents   BIGINT NOT NULL,
		status         ENUM('PENDING','SUCCESSFUL','FAILED') NOT NULL,
		transaction_id VARCHAR(64) NOT NULL,
		paid_at        DATETIME NULL,
		created_at     DATETIME NOT NULL,
		KEY idx_payments_booking (booking_id),
		CONSTRAINT fk_payments_booking FOREIGN KEY (booking_id) REFERENCES bookings (id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates the listings, bookings and payments tables when they do
// not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}

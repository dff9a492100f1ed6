package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the tables in dependency order.  programs, seat_matrices and
// applicants belong to the masters and intake subsystems; they are created
// here only so a fresh database can run the engine on its own.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS programs (
		id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		code             VARCHAR(32)  NOT NULL,
		name             VARCHAR(255) NOT NULL,
		department_id    BIGINT UNSIGNED NOT NULL DEFAULT 0,
		institution_code VARCHAR(32)  NOT NULL DEFAULT '',
		academic_year    VARCHAR(16)  NOT NULL,
		course_type      VARCHAR(8)   NOT NULL,
		entry_type       VARCHAR(16)  NOT NULL DEFAULT 'Regular',
		admission_mode   VARCHAR(16)  NOT NULL DEFAULT 'Government',
		UNIQUE KEY uq_programs_code (institution_code, academic_year, code)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS seat_matrices (
		program_id          BIGINT UNSIGNED NOT NULL PRIMARY KEY,
		total_intake        INT NOT NULL,
		kcet_seats          INT NOT NULL DEFAULT 0,
		comedk_seats        INT NOT NULL DEFAULT 0,
		management_seats    INT NOT NULL DEFAULT 0,
		supernumerary_seats INT NOT NULL DEFAULT 0,
		CONSTRAINT fk_seat_matrices_program FOREIGN KEY (program_id) REFERENCES programs(id),
		CONSTRAINT ck_seat_matrices_sum CHECK (kcet_seats + comedk_seats + management_seats = total_intake)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS quota_counters (
		program_id  BIGINT UNSIGNED NOT NULL,
		quota_type  ENUM('KCET','COMEDK','Management','Supernumerary') NOT NULL,
		total_seats INT NOT NULL,
		allocated   INT NOT NULL DEFAULT 0,
		PRIMARY KEY (program_id, quota_type),
		CONSTRAINT fk_quota_counters_program FOREIGN KEY (program_id) REFERENCES programs(id),
		CONSTRAINT ck_quota_counters_range CHECK (allocated >= 0 AND allocated <= total_seats)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS applicants (
		id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		full_name        VARCHAR(255) NOT NULL,
		mobile           VARCHAR(20)  NOT NULL DEFAULT '',
		quota_type       ENUM('KCET','COMEDK','Management','Supernumerary') NOT NULL,
		program_id       BIGINT UNSIGNED NOT NULL,
		allotment_number VARCHAR(64) NULL,
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_applicants_program FOREIGN KEY (program_id) REFERENCES programs(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS admissions (
		id               BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		applicant_id     BIGINT UNSIGNED NOT NULL,
		program_id       BIGINT UNSIGNED NOT NULL,
		quota_type       ENUM('KCET','COMEDK','Management','Supernumerary') NOT NULL,
		seat_locked      TINYINT(1) NOT NULL DEFAULT 1,
		seat_locked_at   DATETIME NULL,
		fee_status       ENUM('Pending','Paid') NOT NULL DEFAULT 'Pending',
		fee_paid_at      DATETIME NULL,
		is_confirmed     TINYINT(1) NOT NULL DEFAULT 0,
		confirmed_at     DATETIME NULL,
		admission_number VARCHAR(64) NULL,
		version          INT UNSIGNED NOT NULL DEFAULT 1,
		created_at       DATETIME NOT NULL,
		updated_at       DATETIME NOT NULL,
		UNIQUE KEY uq_admissions_applicant (applicant_id),
		UNIQUE KEY uq_admissions_number (admission_number),
		KEY ix_admissions_quota (program_id, quota_type),
		CONSTRAINT fk_admissions_applicant FOREIGN KEY (applicant_id) REFERENCES applicants(id),
		CONSTRAINT fk_admissions_program FOREIGN KEY (program_id) REFERENCES programs(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS documents (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		applicant_id  BIGINT UNSIGNED NOT NULL,
		document_name VARCHAR(255) NOT NULL,
		status        ENUM('Pending','Submitted','Verified') NOT NULL DEFAULT 'Pending',
		version       INT UNSIGNED NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL,
		KEY ix_documents_applicant (applicant_id),
		CONSTRAINT fk_documents_applicant FOREIGN KEY (applicant_id) REFERENCES applicants(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS admission_sequences (
		scope      VARCHAR(128) NOT NULL PRIMARY KEY,
		last_value BIGINT NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.  It never alters existing ones.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

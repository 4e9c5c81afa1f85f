package postgres

// Schema is the table definition backing the store. Migrations are applied
// externally, but tests and local environments create it directly.
const Schema = `
	CREATE TABLE IF NOT EXISTS vesting__core_tokenaccount(
		id SERIAL NOT NULL PRIMARY KEY,

		address TEXT NOT NULL,
		owner TEXT NOT NULL,
		mint TEXT NOT NULL,

		balance BIGINT NOT NULL CHECK (balance >= 0),

		version BIGINT NOT NULL,

		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		last_updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

		CONSTRAINT vesting__core_tokenaccount__uniq__address UNIQUE (address)
	);
`

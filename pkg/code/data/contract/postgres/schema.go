package postgres

// Schema is the table definition backing the store. Migrations are applied
// externally, but tests and local environments create it directly.
const Schema = `
	CREATE TABLE IF NOT EXISTS vesting__core_contract(
		id SERIAL NOT NULL PRIMARY KEY,

		identifier TEXT NOT NULL,

		address TEXT NOT NULL,
		bump INTEGER NOT NULL,

		escrow_address TEXT NOT NULL,
		escrow_bump INTEGER NOT NULL,

		initializer TEXT NOT NULL,
		source TEXT NOT NULL,
		destination TEXT NOT NULL,
		mint TEXT NOT NULL,

		schedule TEXT NOT NULL,
		release_cursor INTEGER NOT NULL,
		state INTEGER NOT NULL,

		version BIGINT NOT NULL,

		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		last_updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

		CONSTRAINT vesting__core_contract__uniq__identifier UNIQUE (identifier),
		CONSTRAINT vesting__core_contract__uniq__address UNIQUE (address),
		CONSTRAINT vesting__core_contract__uniq__escrow_address UNIQUE (escrow_address)
	);
`

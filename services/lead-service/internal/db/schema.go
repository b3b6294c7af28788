package db

// Schema creates the tables the lead pipeline reads and writes.
// email_threads and emails are populated by the Gmail sync job.
const Schema = `
	CREATE TABLE IF NOT EXISTS leads (
	    id UUID PRIMARY KEY,
	    user_id UUID NOT NULL,
	    email VARCHAR(320) NOT NULL,
	    contact_name VARCHAR(255),
	    company VARCHAR(255),
	    status VARCHAR(16) NOT NULL DEFAULT 'warm',
	    last_contact_at TIMESTAMP WITH TIME ZONE,
	    days_since_contact INTEGER NOT NULL DEFAULT 0 CHECK (days_since_contact >= 0),
	    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	-- Lead identity is the address without regard to case.
	DROP INDEX IF EXISTS idx_leads_user_email;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_user_lower_email ON leads(user_id, lower(email));

	CREATE TABLE IF NOT EXISTS email_threads (
	    id UUID PRIMARY KEY,
	    user_id UUID NOT NULL,
	    subject TEXT,
	    gmail_thread_id VARCHAR(255),
	    lead_id UUID REFERENCES leads(id),
	    status VARCHAR(16) NOT NULL DEFAULT 'active',
	    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_email_threads_user_lead ON email_threads(user_id, lead_id);
	CREATE INDEX IF NOT EXISTS idx_email_threads_updated_at ON email_threads(updated_at);

	CREATE TABLE IF NOT EXISTS emails (
	    id UUID PRIMARY KEY,
	    user_id UUID NOT NULL,
	    thread_id UUID REFERENCES email_threads(id),
	    direction VARCHAR(16) NOT NULL,
	    from_email VARCHAR(320),
	    to_email VARCHAR(320),
	    subject TEXT,
	    snippet TEXT,
	    body_text TEXT,
	    body_html TEXT,
	    status VARCHAR(16) NOT NULL DEFAULT 'received',
	    is_ai_draft BOOLEAN NOT NULL DEFAULT FALSE,
	    tone VARCHAR(32),
	    received_at TIMESTAMP WITH TIME ZONE,
	    sent_at TIMESTAMP WITH TIME ZONE,
	    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_emails_thread_id ON emails(thread_id);
	CREATE INDEX IF NOT EXISTS idx_emails_user_id ON emails(user_id);
`

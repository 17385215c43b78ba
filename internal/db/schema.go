package db

// SchemaSQL defines the job table.
// seq orders jobs most recent first; settings keeps the snapshot as a free-form object.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS seq ON job TYPE int;
    DEFINE FIELD IF NOT EXISTS file_name ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS type ON job TYPE string ASSERT $value IN ["ocr", "convert"];
    DEFINE FIELD IF NOT EXISTS status ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS progress ON job TYPE int ASSERT $value >= 0 AND $value <= 100;
    DEFINE FIELD IF NOT EXISTS attempt ON job TYPE int DEFAULT 1;
    DEFINE FIELD IF NOT EXISTS message ON job TYPE string DEFAULT '';
    DEFINE FIELD IF NOT EXISTS result_url ON job TYPE string DEFAULT '';
    DEFINE FIELD IF NOT EXISTS remote_id ON job TYPE string DEFAULT '';
    DEFINE FIELD IF NOT EXISTS settings ON job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON job TYPE datetime;
    DEFINE FIELD IF NOT EXISTS updated_at ON job TYPE datetime;

    DEFINE INDEX IF NOT EXISTS job_seq ON job FIELDS seq;
    DEFINE INDEX IF NOT EXISTS job_status ON job FIELDS status;
`

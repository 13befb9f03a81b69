package db

// SchemaSQL contains the database schema initialization SQL for the
// analytical and graph backends. Both key derived records by packet id so
// retirement can remove everything a packet produced.
const SchemaSQL = `
    -- ==========================================================================
    -- ANALYTICAL RECORD TABLE (one record per packet)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS analytical_record SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS packet_id ON analytical_record TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON analytical_record TYPE string;
    DEFINE FIELD IF NOT EXISTS tags ON analytical_record TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS fields ON analytical_record TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS tables ON analytical_record TYPE option<array> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS search_text ON analytical_record TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON analytical_record TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS analytical_packet ON analytical_record FIELDS packet_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS analytical_tags ON analytical_record FIELDS tags;
    DEFINE ANALYZER IF NOT EXISTS record_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS analytical_ft ON analytical_record FIELDS search_text FULLTEXT ANALYZER record_analyzer BM25;

    -- ==========================================================================
    -- GRAPH ENTITY TABLE (shared nodes, keyed by type/name slug)
    -- ==========================================================================
    -- packet_ids records which packets mention the entity; an entity is
    -- removed when its last packet is retired.
    DEFINE TABLE IF NOT EXISTS graph_entity SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS entity_type ON graph_entity TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON graph_entity TYPE string;
    DEFINE FIELD IF NOT EXISTS properties ON graph_entity TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS packet_ids ON graph_entity TYPE array<string>;
    DEFINE FIELD IF NOT EXISTS created ON graph_entity TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS entity_name ON graph_entity FIELDS name;
    DEFINE ANALYZER IF NOT EXISTS entity_analyzer TOKENIZERS class FILTERS lowercase, ascii;
    DEFINE INDEX IF NOT EXISTS entity_name_ft ON graph_entity FIELDS name FULLTEXT ANALYZER entity_analyzer BM25;

    -- ==========================================================================
    -- RELATES_TO RELATION (typed edges between graph entities)
    -- ==========================================================================
    -- Unique constraint on sorted [in, out, rel_type, packet_id] prevents
    -- duplicate edges when a packet is re-written.
    DEFINE TABLE IF NOT EXISTS relates_to TYPE RELATION IN graph_entity OUT graph_entity SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS rel_type ON relates_to TYPE string;
    DEFINE FIELD IF NOT EXISTS properties ON relates_to TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS packet_id ON relates_to TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON relates_to TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS unique_key ON relates_to VALUE <string>string::concat(array::sort([<string>in, <string>out]), rel_type, packet_id);
    DEFINE INDEX IF NOT EXISTS unique_relation ON relates_to FIELDS unique_key UNIQUE;
    DEFINE INDEX IF NOT EXISTS relation_packet ON relates_to FIELDS packet_id;
`

package store

// Cypher for the memgraph-backed store. Derived records carry the full
// serialized payload alongside the graph structure, so reads are a single
// match while the provenance graph stays traversable in the database.

const saveLoanQuery = `
MERGE (l:Loan {id: $id})
SET l.loan_type = $loan_type,
    l.state = $state
`

const getLoanQuery = `
MATCH (l:Loan {id: $id})
RETURN l.id AS id, l.loan_type AS loan_type, l.state AS state
`

const deleteDocumentsQuery = `
MATCH (d:Document {loan_id: $loan_id})
DETACH DELETE d
`

const saveDocumentQuery = `
MERGE (d:Document {id: $id})
SET d.loan_id = $loan_id,
    d.payload = $payload
`

const listDocumentsQuery = `
MATCH (d:Document {loan_id: $loan_id})
RETURN d.payload AS payload
ORDER BY d.id
`

const deleteDerivedQuery = `
MATCH (n {loan_id: $loan_id})
WHERE n:InstrumentGroup OR n:CalculationStep OR n:Run
DETACH DELETE n
`

const saveRunQuery = `
MERGE (r:Run {loan_id: $loan_id})
SET r.execution_id = $execution_id,
    r.payload = $payload
`

const getRunQuery = `
MATCH (r:Run {loan_id: $loan_id})
RETURN r.payload AS payload
`

const saveGroupQuery = `
MERGE (g:InstrumentGroup {loan_id: $loan_id, key: $key})
SET g.type_label = $type_label,
    g.status = $status
`

const saveVersionEdgeQuery = `
MATCH (g:InstrumentGroup {loan_id: $loan_id, key: $key})
MATCH (d:Document {id: $document_id})
MERGE (d)-[v:DRAFT_OF]->(g)
SET v.rank = $rank,
    v.role = $role,
    v.reason = $reason
`

const saveStepQuery = `
MERGE (s:CalculationStep {loan_id: $loan_id, attribute: $attribute, id: $id})
SET s.payload = $payload
`

const saveStepParentQuery = `
MATCH (s:CalculationStep {loan_id: $loan_id, attribute: $attribute, id: $id})
MATCH (p:CalculationStep {loan_id: $loan_id, attribute: $attribute, id: $parent_id})
MERGE (s)-[:DERIVES_FROM]->(p)
`

// Compliance results are append-only: CREATE, never MERGE.
const appendResultQuery = `
CREATE (r:ComplianceResult {
	loan_id: $loan_id,
	rule_code: $rule_code,
	execution_id: $execution_id,
	payload: $payload
})
`

const markLatestExecutionQuery = `
MERGE (e:ComplianceLedger {loan_id: $loan_id})
SET e.latest_execution_id = $execution_id
`

const latestExecutionQuery = `
MATCH (e:ComplianceLedger {loan_id: $loan_id})
RETURN e.latest_execution_id AS execution_id
`

const resultsByExecutionQuery = `
MATCH (r:ComplianceResult {loan_id: $loan_id, execution_id: $execution_id})
RETURN r.payload AS payload
ORDER BY r.rule_code
`

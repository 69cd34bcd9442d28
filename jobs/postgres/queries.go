package postgres

// SQL query constants for job oracle operations

const (
	// _SQL_GET_JOB retrieves a job descriptor joined with its type's exclusivity
	_SQL_GET_JOB = `
		SELECT j.id, j.project_id, j.job_type, j.status, COALESCE(t.exclusive, FALSE),
		       j.total_chunks, j.created_at, j.updated_at
		FROM batch_jobs j
		LEFT JOIN batch_job_types t ON t.name = j.job_type
		WHERE j.id = $1`

	// _SQL_GET_STATUSES retrieves the status of a set of jobs
	_SQL_GET_STATUSES = `
		SELECT id, status
		FROM batch_jobs
		WHERE id = ANY($1)`

	// _SQL_INCOMPLETE_JOBS lists exclusive jobs of a project that are still pending or running
	_SQL_INCOMPLETE_JOBS = `
		SELECT j.id, j.status, j.total_chunks
		FROM batch_jobs j
		JOIN batch_job_types t ON t.name = j.job_type AND t.exclusive
		WHERE j.project_id = $1 AND j.status IN ('PENDING', 'RUNNING')
		ORDER BY j.id ASC`

	// _SQL_UNLOCKED_CHUNK_COUNTS counts chunks not yet dequeued per job
	_SQL_UNLOCKED_CHUNK_COUNTS = `
		SELECT job_id, COUNT(*)
		FROM batch_job_chunks
		WHERE job_id = ANY($1) AND NOT locked
		GROUP BY job_id`

	// _SQL_PENDING_CHUNKS lists queued chunks, optionally for a single project
	_SQL_PENDING_CHUNKS = `
		SELECT c.id, c.job_id, j.project_id, c.chunk_index, c.locked, c.locked_at, c.created_at
		FROM batch_job_chunks c
		JOIN batch_jobs j ON j.id = c.job_id
		WHERE ($1::BIGINT IS NULL OR j.project_id = $1)
		ORDER BY c.created_at ASC, c.id ASC
		LIMIT $2`
)

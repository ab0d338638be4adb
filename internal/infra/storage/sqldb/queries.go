package sqldb

// Queries use '?' placeholders and are rebound for the driver at execution time.
const (
	upsertTargetSiteQuery = `
INSERT INTO ex_target_site (target_site_id, assembly_name, type_name, method_name, il_offset, file_name, file_line, file_column)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (target_site_id) DO NOTHING`

	insertExceptionQuery = `
INSERT INTO ex_exception (exception_id, assembly_name, type_name, stack_trace, target_site_id)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (exception_id) DO NOTHING`

	selectPolicyQuery = `
SELECT log_web_context, log_headers FROM ex_exception_policy WHERE exception_id = ?`

	upsertApplicationQuery = `
INSERT INTO ex_application (application_id, machine_name, application_name, environment_name, process_path)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (application_id) DO NOTHING`

	insertInstanceQuery = `
INSERT INTO ex_instance (exception_id, application_id, logged_at, sequence_number, is_handled,
    application_identity, parent_instance_id, correlation_id, goroutine_id, message)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING instance_id`

	upsertWebApplicationQuery = `
INSERT INTO ex_web_application (web_application_id, machine_name, application_id, physical_path, virtual_path, site_name)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (web_application_id) DO NOTHING`

	upsertURLQuery = `
INSERT INTO ex_url (url_id, scheme, host, port, path)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (url_id) DO NOTHING`

	upsertURLQueryQuery = `
INSERT INTO ex_url_query (url_query_id, url_id, query)
VALUES (?, ?, ?)
ON CONFLICT (url_query_id) DO NOTHING`

	countCollectionQuery = `
SELECT COUNT(*) FROM ex_collection_key_value WHERE collection_id = ?`

	upsertCollectionValueQuery = `
INSERT INTO ex_collection_value (value_id, value)
VALUES (?, ?)
ON CONFLICT (value_id) DO NOTHING`

	upsertCollectionEntryQuery = `
INSERT INTO ex_collection_key_value (collection_id, name, value_id)
VALUES (?, ?, ?)
ON CONFLICT (collection_id, name) DO NOTHING`

	insertWebContextQuery = `
INSERT INTO ex_context_web (instance_id, web_application_id, authenticated_user, http_method,
    request_url_query_id, referrer_url_query_id, headers_collection_id)
VALUES (?, ?, ?, ?, ?, ?, ?)`
)

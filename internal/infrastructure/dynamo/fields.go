package dynamo

// DynamoDB attribute names used in keys, indexes and condition expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldPartitionKey = "partition_key"
	fieldRowKey       = "row_key"

	fieldLeaseName  = "lease_name"
	fieldLeaseOwner = "owner"
	fieldExpiresAt  = "expires_at"

	indexNotificationAddress = "notification_mail-index"
	indexAccessCodeEmail     = "email-index"
)

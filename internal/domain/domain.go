package domain

type Tenant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

const (
	ClientIndividual = "individual"
	ClientCompany    = "company"
)

type Client struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Kind        string `json:"kind" enum:"individual,company"`
	FullName    string `json:"full_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	TaxID       string `json:"tax_id,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	Status      string `json:"status"`
	CreatedBy   string `json:"created_by,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// DisplayName returns the name field that is meaningful for the client's kind.
func (c Client) DisplayName() string {
	if c.Kind == ClientCompany {
		return c.CompanyName
	}
	return c.FullName
}

type Project struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenant_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	ClientName  string  `json:"client_name,omitempty"`
	ClientID    *string `json:"client_id,omitempty"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Protocol struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Stage struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	ProtocolID string `json:"protocol_id"`
	Name       string `json:"name"`
	Position   int    `json:"position"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Case struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	Number    string `json:"number"`
	Court     string `json:"court,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ProjectCase struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id"`
	CaseID    string `json:"case_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Deadline struct {
	ID              string  `json:"id"`
	TenantID        string  `json:"tenant_id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	DueDate         string  `json:"due_date" format:"date"`
	OwnerUserID     string  `json:"owner_user_id"`
	ResponsibleID   *string `json:"responsible_user_id,omitempty"`
	CaseID          *string `json:"case_id,omitempty"`
	ProjectID       *string `json:"project_id,omitempty"`
	ProtocolStageID *string `json:"protocol_stage_id,omitempty"`
	Completed       bool    `json:"completed"`
	CreatedAt       string  `json:"created_at" format:"date-time"`

	// Denormalized for listings.
	ResponsibleName string `json:"responsible_name,omitempty"`
	CaseNumber      string `json:"case_number,omitempty"`
	ProjectName     string `json:"project_name,omitempty"`
}

const (
	InstallmentPending = "pending"
	InstallmentPaid    = "paid"
)

type Installment struct {
	ID             string   `json:"id"`
	TenantID       string   `json:"tenant_id"`
	ClientID       string   `json:"client_id"`
	SequenceNumber int      `json:"sequence_number"`
	Amount         float64  `json:"amount"`
	DueDate        string   `json:"due_date,omitempty" format:"date"`
	Status         string   `json:"status" enum:"pending,paid"`
	PaidAt         *string  `json:"paid_at,omitempty" format:"date-time"`
	PaymentMethod  *string  `json:"payment_method,omitempty"`
	PaidAmount     *float64 `json:"paid_amount,omitempty"`
}

const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"

	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped"
)

type Message struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenant_id"`
	Phone          string `json:"phone"`
	Body           string `json:"body"`
	Direction      string `json:"direction" enum:"incoming,outgoing"`
	InstanceName   string `json:"instance_name,omitempty"`
	MessageID      string `json:"message_id"`
	MessageType    string `json:"message_type"`
	UserID         string `json:"user_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	Read           bool   `json:"read"`
	DeliveryStatus string `json:"delivery_status,omitempty" enum:"sent,failed,skipped"`
	DeliveryError  string `json:"delivery_error,omitempty"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

// ChannelInstance holds per-tenant chat provider credentials.
type ChannelInstance struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	AgentID     string `json:"agent_id,omitempty"`
	InstanceID  string `json:"instance_id"`
	Token       string `json:"-"`
	ClientToken string `json:"-"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TenantID   string `json:"tenant_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

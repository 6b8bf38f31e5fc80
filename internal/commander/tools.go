package commander

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"lexflow/internal/llm"
)

const (
	ToolCreateDeadline         = "criar_prazo"
	ToolCreateProject          = "criar_projeto"
	ToolCreateClient           = "criar_cliente"
	ToolSettleInstallment      = "baixar_parcela"
	ToolLinkCase               = "vincular_processo"
	ToolCreateProtocolDeadline = "criar_prazo_protocolo"
	ToolListDeadlines          = "listar_prazos"
	ToolListProjects           = "listar_projetos"
)

const (
	FilterToday   = "hoje"
	FilterOverdue = "vencidos"
	FilterNext7   = "proximos_7_dias"
	FilterAll     = "todos"
	// FilterAgenda is overdue plus today. The digest uses it; the model does not see it.
	FilterAgenda = "agenda"
)

const (
	kindIndividual = "pessoa_fisica"
	kindCompany    = "pessoa_juridica"
)

// ErrUnknownTool is returned for a tool name outside the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// Action is one decoded tool call. The set of implementations is closed; Executor.Execute
// switches over all of them.
type Action interface {
	ToolName() string
	isAction()
}

type CreateDeadline struct {
	Title       string `json:"titulo"`
	DueDate     string `json:"data_vencimento"`
	Description string `json:"descricao,omitempty"`
	Responsible string `json:"responsavel,omitempty"`
	CaseNumber  string `json:"numero_processo,omitempty"`
	Project     string `json:"projeto,omitempty"`
}

type CreateProject struct {
	Name        string `json:"nome"`
	Description string `json:"descricao,omitempty"`
	Client      string `json:"cliente,omitempty"`
}

type CreateClient struct {
	Name  string `json:"nome"`
	Kind  string `json:"tipo"`
	TaxID string `json:"cpf_cnpj,omitempty"`
	Phone string `json:"telefone,omitempty"`
	Email string `json:"email,omitempty"`
}

type SettleInstallment struct {
	Client        string  `json:"cliente"`
	Sequence      Number  `json:"numero_parcela"`
	Amount        *Number `json:"valor_pago,omitempty"`
	PaymentMethod string  `json:"forma_pagamento,omitempty"`
	PaidAt        string  `json:"data_pagamento,omitempty"`
}

type LinkCase struct {
	Project    string `json:"projeto"`
	CaseNumber string `json:"numero_processo"`
}

type CreateProtocolDeadline struct {
	Project     string `json:"projeto"`
	Protocol    string `json:"protocolo"`
	Stage       string `json:"etapa"`
	Title       string `json:"titulo"`
	DueDate     string `json:"data_vencimento"`
	Description string `json:"descricao,omitempty"`
	Responsible string `json:"responsavel,omitempty"`
}

type ListDeadlines struct {
	Filter      string `json:"filtro,omitempty"`
	Responsible string `json:"responsavel,omitempty"`
}

type ListProjects struct {
	Client string `json:"cliente,omitempty"`
}

func (CreateDeadline) ToolName() string         { return ToolCreateDeadline }
func (CreateProject) ToolName() string          { return ToolCreateProject }
func (CreateClient) ToolName() string           { return ToolCreateClient }
func (SettleInstallment) ToolName() string      { return ToolSettleInstallment }
func (LinkCase) ToolName() string               { return ToolLinkCase }
func (CreateProtocolDeadline) ToolName() string { return ToolCreateProtocolDeadline }
func (ListDeadlines) ToolName() string          { return ToolListDeadlines }
func (ListProjects) ToolName() string           { return ToolListProjects }

func (CreateDeadline) isAction()         {}
func (CreateProject) isAction()          {}
func (CreateClient) isAction()           {}
func (SettleInstallment) isAction()      {}
func (LinkCase) isAction()               {}
func (CreateProtocolDeadline) isAction() {}
func (ListDeadlines) isAction()          {}
func (ListProjects) isAction()           {}

// Number accepts JSON numbers and numeric strings such as "3", "1500.50" or "1.500,50".
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = Number(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("not a number: %s", data)
	}
	v, err := parseLooseNumber(s)
	if err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

var thousandsGrouped = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)

func parseLooseNumber(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	s = strings.TrimSpace(s)
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case thousandsGrouped.MatchString(s):
		// "1.500" is fifteen hundred in Brazilian notation.
		s = strings.ReplaceAll(s, ".", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}

// DecodeAction turns a tool call into its typed action.
func DecodeAction(call llm.ToolCall) (Action, error) {
	args := call.Arguments
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage("{}")
	}
	var (
		action Action
		err    error
	)
	switch call.Name {
	case ToolCreateDeadline:
		var a CreateDeadline
		err = json.Unmarshal(args, &a)
		action = a
	case ToolCreateProject:
		var a CreateProject
		err = json.Unmarshal(args, &a)
		action = a
	case ToolCreateClient:
		var a CreateClient
		err = json.Unmarshal(args, &a)
		action = a
	case ToolSettleInstallment:
		var a SettleInstallment
		err = json.Unmarshal(args, &a)
		action = a
	case ToolLinkCase:
		var a LinkCase
		err = json.Unmarshal(args, &a)
		action = a
	case ToolCreateProtocolDeadline:
		var a CreateProtocolDeadline
		err = json.Unmarshal(args, &a)
		action = a
	case ToolListDeadlines:
		var a ListDeadlines
		err = json.Unmarshal(args, &a)
		action = a
	case ToolListProjects:
		var a ListProjects
		err = json.Unmarshal(args, &a)
		action = a
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s arguments: %w", call.Name, err)
	}
	return action, nil
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func object(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// Tools returns the catalog offered to the model.
func Tools() []llm.ToolDefinition {
	dateDesc := "Data de vencimento no formato YYYY-MM-DD"
	return []llm.ToolDefinition{
		{
			Name: ToolCreateDeadline,
			Description: "Cria um prazo simples na agenda, opcionalmente ligado a um processo ou projeto. " +
				"Use quando o usuário pedir um prazo SEM mencionar protocolo e etapa. " +
				"Não use quando o prazo pertencer a uma etapa de protocolo (use criar_prazo_protocolo).",
			Parameters: object(map[string]any{
				"titulo":          str("Título curto do prazo"),
				"data_vencimento": str(dateDesc),
				"descricao":       str("Detalhes adicionais"),
				"responsavel":     str("Nome do usuário responsável"),
				"numero_processo": str("Número do processo judicial, se mencionado"),
				"projeto":         str("Nome do projeto, se mencionado"),
			}, "titulo", "data_vencimento"),
		},
		{
			Name:        ToolCreateProject,
			Description: "Cria um projeto (caso interno do escritório), opcionalmente para um cliente existente.",
			Parameters: object(map[string]any{
				"nome":      str("Nome do projeto"),
				"descricao": str("Descrição do projeto"),
				"cliente":   str("Nome do cliente"),
			}, "nome"),
		},
		{
			Name:        ToolCreateClient,
			Description: "Cadastra um novo cliente, pessoa física ou jurídica.",
			Parameters: object(map[string]any{
				"nome": str("Nome completo ou razão social"),
				"tipo": map[string]any{
					"type":        "string",
					"enum":        []string{kindIndividual, kindCompany},
					"description": "pessoa_fisica ou pessoa_juridica",
				},
				"cpf_cnpj": str("CPF ou CNPJ"),
				"telefone": str("Telefone"),
				"email":    str("E-mail"),
			}, "nome", "tipo"),
		},
		{
			Name:        ToolSettleInstallment,
			Description: "Dá baixa (registra pagamento) em uma parcela de um cliente.",
			Parameters: object(map[string]any{
				"cliente":         str("Nome do cliente"),
				"numero_parcela":  map[string]any{"type": "integer", "description": "Número da parcela"},
				"valor_pago":      map[string]any{"type": "number", "description": "Valor pago; se omitido usa o valor da parcela"},
				"forma_pagamento": str("Forma de pagamento, por exemplo pix, boleto, dinheiro"),
				"data_pagamento":  str("Data do pagamento no formato YYYY-MM-DD; padrão hoje"),
			}, "cliente", "numero_parcela"),
		},
		{
			Name:        ToolLinkCase,
			Description: "Vincula um processo judicial existente a um projeto.",
			Parameters: object(map[string]any{
				"projeto":         str("Nome do projeto"),
				"numero_processo": str("Número do processo"),
			}, "projeto", "numero_processo"),
		},
		{
			Name: ToolCreateProtocolDeadline,
			Description: "Cria um prazo dentro de uma etapa de um protocolo de um projeto. " +
				"Use SOMENTE quando o usuário mencionar projeto, protocolo e etapa. " +
				"Para prazos sem protocolo use criar_prazo.",
			Parameters: object(map[string]any{
				"projeto":         str("Nome do projeto"),
				"protocolo":       str("Nome do protocolo dentro do projeto"),
				"etapa":           str("Nome da etapa dentro do protocolo"),
				"titulo":          str("Título do prazo"),
				"data_vencimento": str(dateDesc),
				"descricao":       str("Detalhes adicionais"),
				"responsavel":     str("Nome do usuário responsável"),
			}, "projeto", "protocolo", "etapa", "titulo", "data_vencimento"),
		},
		{
			Name:        ToolListDeadlines,
			Description: "Lista prazos pendentes da agenda.",
			Parameters: object(map[string]any{
				"filtro": map[string]any{
					"type":        "string",
					"enum":        []string{FilterToday, FilterOverdue, FilterNext7, FilterAll},
					"description": "hoje, vencidos, proximos_7_dias ou todos",
				},
				"responsavel": str("Filtrar pelo nome do responsável"),
			}),
		},
		{
			Name:        ToolListProjects,
			Description: "Lista os projetos mais recentes.",
			Parameters: object(map[string]any{
				"cliente": str("Filtrar pelo nome do cliente"),
			}),
		},
	}
}

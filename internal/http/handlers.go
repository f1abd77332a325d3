package http

import (
	"log/slog"
	"net/http"
	"sort"

	"divvy/internal/core"
	"divvy/internal/services"
)

// Wire DTOs. Every monetary field travels twice: as exact integer cents and
// as a formatted decimal string. Clients must never re-derive one from the
// other with floats.

type memberJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

type groupJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// groupDetailJSON is the full group view: membership, the replayed ledger
// and the exact total spent.
type groupDetailJSON struct {
	groupJSON
	Members         []memberJSON  `json:"members"`
	Expenses        []expenseJSON `json:"expenses"`
	TotalSpentCents int64         `json:"total_spent_cents"`
	TotalSpent      string        `json:"total_spent"`
}

type splitJSON struct {
	MemberID    int64  `json:"member_id"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
	WeightBps   *int64 `json:"weight_bps,omitempty"`
}

type expenseJSON struct {
	ID          int64       `json:"id"`
	GroupID     int64       `json:"group_id"`
	Description string      `json:"description"`
	AmountCents int64       `json:"amount_cents"`
	Amount      string      `json:"amount"`
	PaidBy      int64       `json:"paid_by"`
	SplitType   string      `json:"split_type"`
	Splits      []splitJSON `json:"splits"`
	CreatedAt   string      `json:"created_at"`
}

type balanceEntryJSON struct {
	MemberID    int64  `json:"member_id"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

type memberBalanceJSON struct {
	MemberID int64              `json:"member_id"`
	NetCents int64              `json:"net_cents"`
	Net      string             `json:"net"`
	OwesTo   []balanceEntryJSON `json:"owes_to"`
	OwedBy   []balanceEntryJSON `json:"owed_by"`
}

type groupBalancesJSON struct {
	GroupID int64               `json:"group_id"`
	Members []memberBalanceJSON `json:"members"`
}

type groupSummaryJSON struct {
	GroupID   int64              `json:"group_id"`
	GroupName string             `json:"group_name"`
	NetCents  int64              `json:"net_cents"`
	Net       string             `json:"net"`
	OwesTo    []balanceEntryJSON `json:"owes_to"`
	OwedBy    []balanceEntryJSON `json:"owed_by"`
}

type userBalancesJSON struct {
	MemberID   int64              `json:"member_id"`
	TotalCents int64              `json:"total_cents"`
	Total      string             `json:"total"`
	Groups     []groupSummaryJSON `json:"groups"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func toMemberJSON(m core.Member) memberJSON {
	return memberJSON{
		ID:        int64(m.ID),
		Name:      m.Name,
		Email:     m.Email,
		CreatedAt: m.CreatedAt.Format(timeLayout),
	}
}

func toGroupJSON(g core.Group) groupJSON {
	return groupJSON{
		ID:        int64(g.ID),
		Name:      g.Name,
		CreatedAt: g.CreatedAt.Format(timeLayout),
	}
}

func toExpenseJSON(rec core.ExpenseRecord) expenseJSON {
	out := expenseJSON{
		ID:          rec.ID,
		GroupID:     int64(rec.GroupID),
		Description: rec.Description,
		AmountCents: rec.Total.Cents,
		Amount:      core.FormatCents(rec.Total.Cents),
		PaidBy:      int64(rec.PaidBy),
		SplitType:   string(rec.Policy.Type),
		CreatedAt:   rec.CreatedAt.Format(timeLayout),
	}
	for id, share := range rec.Splits {
		s := splitJSON{
			MemberID:    int64(id),
			AmountCents: share.Cents,
			Amount:      core.FormatCents(share.Cents),
		}
		if w, ok := rec.Policy.Weights[id]; ok {
			weight := w
			s.WeightBps = &weight
		}
		out.Splits = append(out.Splits, s)
	}
	sort.Slice(out.Splits, func(i, j int) bool { return out.Splits[i].MemberID < out.Splits[j].MemberID })
	return out
}

func toEntriesJSON(entries []core.BalanceEntry) []balanceEntryJSON {
	out := make([]balanceEntryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, balanceEntryJSON{
			MemberID:    int64(e.Member),
			AmountCents: e.Amount.Cents,
			Amount:      core.FormatCents(e.Amount.Cents),
		})
	}
	return out
}

// --- Members ---

type createMemberRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	m, err := s.store.CreateMember(r.Context(), sanitizeInput(req.Name), sanitizeInput(req.Email))
	if err != nil {
		slog.WarnContext(r.Context(), "Create member rejected", "error", err)
		ResponseForError(err).Write(w)
		return
	}

	NewJSONResponse().Status(http.StatusCreated).Body(toMemberJSON(m)).Write(w)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.store.ListMembers(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List members error", "error", err)
		ResponseForError(err).Write(w)
		return
	}

	out := make([]memberJSON, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberJSON(m))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	m, err := s.store.GetMember(r.Context(), core.MemberID(id))
	if err != nil {
		ResponseForError(err).Write(w)
		return
	}
	NewJSONResponse().Body(toMemberJSON(m)).Write(w)
}

// --- Groups ---

type createGroupRequest struct {
	Name      string  `json:"name"`
	MemberIDs []int64 `json:"member_ids"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ids := make([]core.MemberID, 0, len(req.MemberIDs))
	for _, id := range req.MemberIDs {
		ids = append(ids, core.MemberID(id))
	}

	g, err := s.store.CreateGroup(r.Context(), sanitizeInput(req.Name), ids)
	if err != nil {
		slog.WarnContext(r.Context(), "Create group rejected", "error", err)
		ResponseForError(err).Write(w)
		return
	}

	NewJSONResponse().Status(http.StatusCreated).Body(toGroupJSON(g)).Write(w)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.store.ListGroups(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List groups error", "error", err)
		ResponseForError(err).Write(w)
		return
	}

	out := make([]groupJSON, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupJSON(g))
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	g, err := s.store.GetGroup(r.Context(), core.GroupID(id))
	if err != nil {
		ResponseForError(err).Write(w)
		return
	}
	members, err := s.store.MembersOf(r.Context(), g.ID)
	if err != nil {
		ResponseForError(err).Write(w)
		return
	}
	records, err := s.store.ExpensesOf(r.Context(), g.ID)
	if err != nil {
		ResponseForError(err).Write(w)
		return
	}

	out := groupDetailJSON{
		groupJSON: toGroupJSON(g),
		Members:   make([]memberJSON, 0, len(members)),
		Expenses:  make([]expenseJSON, 0, len(records)),
	}
	for _, m := range members {
		out.Members = append(out.Members, toMemberJSON(m))
	}
	var total core.Money
	for _, rec := range records {
		out.Expenses = append(out.Expenses, toExpenseJSON(rec))
		if total, err = total.Add(rec.Total); err != nil {
			ResponseForError(err).Write(w)
			return
		}
	}
	out.TotalSpentCents = total.Cents
	out.TotalSpent = core.FormatCents(total.Cents)
	NewJSONResponse().Body(out).Write(w)
}

// --- Expenses ---

type weightRequest struct {
	MemberID int64  `json:"member_id"`
	Percent  string `json:"percent"`
}

type createExpenseRequest struct {
	Description  string          `json:"description"`
	Amount       string          `json:"amount"`
	PaidBy       int64           `json:"paid_by"`
	SplitType    string          `json:"split_type"`
	Participants []int64         `json:"participants,omitempty"`
	Weights      []weightRequest `json:"weights,omitempty"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	in, err := s.expenseInputFrom(core.GroupID(groupID), req)
	if err != nil {
		ResponseForError(err).Write(w)
		return
	}

	rec, err := s.expenses.Record(r.Context(), in)
	if err != nil {
		slog.WarnContext(r.Context(), "Record expense rejected",
			"group_id", groupID, "error", err)
		ResponseForError(err).Write(w)
		return
	}

	NewJSONResponse().Status(http.StatusCreated).Body(toExpenseJSON(rec)).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	records, err := s.expenses.ListExpenses(r.Context(), core.GroupID(groupID))
	if err != nil {
		ResponseForError(err).Write(w)
		return
	}

	out := make([]expenseJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, toExpenseJSON(rec))
	}
	NewJSONResponse().Body(out).Write(w)
}

// --- Balances ---

func (s *Server) handleGroupBalances(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	view, err := s.balances.GroupBalances(r.Context(), core.GroupID(groupID))
	if err != nil {
		slog.ErrorContext(r.Context(), "Group balances error", "group_id", groupID, "error", err)
		ResponseForError(err).Write(w)
		return
	}

	out := groupBalancesJSON{GroupID: groupID, Members: make([]memberBalanceJSON, 0, len(view))}
	for _, mb := range view {
		out.Members = append(out.Members, memberBalanceJSON{
			MemberID: int64(mb.Member),
			NetCents: mb.Net.Cents,
			Net:      core.FormatCents(mb.Net.Cents),
			OwesTo:   toEntriesJSON(mb.OwesTo),
			OwedBy:   toEntriesJSON(mb.OwedBy),
		})
	}
	NewJSONResponse().Body(out).Write(w)
}

func (s *Server) handleUserBalances(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	view, err := s.balances.UserBalances(r.Context(), core.MemberID(memberID))
	if err != nil {
		slog.ErrorContext(r.Context(), "User balances error", "member_id", memberID, "error", err)
		ResponseForError(err).Write(w)
		return
	}

	out := userBalancesJSON{
		MemberID:   int64(view.Member),
		TotalCents: view.Total.Cents,
		Total:      core.FormatCents(view.Total.Cents),
		Groups:     make([]groupSummaryJSON, 0, len(view.PerGroup)),
	}
	for _, gs := range view.PerGroup {
		out.Groups = append(out.Groups, groupSummaryJSON{
			GroupID:   int64(gs.Group.ID),
			GroupName: gs.Group.Name,
			NetCents:  gs.Net.Cents,
			Net:       core.FormatCents(gs.Net.Cents),
			OwesTo:    toEntriesJSON(gs.OwesTo),
			OwedBy:    toEntriesJSON(gs.OwedBy),
		})
	}
	NewJSONResponse().Body(out).Write(w)
}

// expenseInputFrom converts a wire request into a service input, parsing the
// decimal amount and percentage weights exactly.
func (s *Server) expenseInputFrom(groupID core.GroupID, req createExpenseRequest) (services.RecordExpenseInput, error) {
	splitType, err := core.ParseSplitType(req.SplitType)
	if err != nil {
		return services.RecordExpenseInput{}, err
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return services.RecordExpenseInput{}, err
	}

	in := services.RecordExpenseInput{
		GroupID:     groupID,
		Description: sanitizeInput(req.Description),
		Total:       core.Money{Cents: cents},
		PaidBy:      core.MemberID(req.PaidBy),
		SplitType:   splitType,
	}
	for _, id := range req.Participants {
		in.Participants = append(in.Participants, core.MemberID(id))
	}
	if len(req.Weights) > 0 {
		in.Weights = make(map[core.MemberID]int64, len(req.Weights))
		for _, wr := range req.Weights {
			bps, err := core.ParsePercentToBasisPoints(wr.Percent)
			if err != nil {
				return services.RecordExpenseInput{}, err
			}
			in.Weights[core.MemberID(wr.MemberID)] = bps
		}
	}
	return in, nil
}

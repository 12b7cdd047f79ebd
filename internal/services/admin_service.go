package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"
)

// AdminService serves staff-only reporting: the staff roster, program
// analytics and the recent activity feed.
type AdminService struct {
	db *sql.DB
}

func NewAdminService(db *sql.DB) *AdminService {
	return &AdminService{db: db}
}

// StaffMember is one row of the staff roster.
type StaffMember struct {
	ID          int        `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	LastLogin   *time.Time `json:"last_login,omitempty"`
}

// Analytics summarises the loyalty program.
type Analytics struct {
	TotalCustomers int `json:"total_customers"`
	PointsIssued   int `json:"points_issued"`
	PointsRedeemed int `json:"points_redeemed"`
	ActiveRewards  int `json:"active_rewards"`
	ScansToday     int `json:"scans_today"`
}

// ActivityEntry is one row of the recent activity feed.
type ActivityEntry struct {
	ID              int       `json:"id"`
	CustomerName    string    `json:"customer_name"`
	StaffName       string    `json:"staff_name,omitempty"`
	PointsAmount    int       `json:"points_amount"`
	Description     string    `json:"description"`
	TransactionDate time.Time `json:"transaction_date"`
}

// GetStaff lists staff accounts
// @Summary List staff
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{return_code=string,staff=[]StaffMember}
// @Failure 403 {object} ErrorResponse
// @Router /admin/staff [get]
func (s *AdminService) GetStaff(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, email, COALESCE(display_name, ''), last_login
		FROM users
		WHERE staff = true
		ORDER BY display_name, email
	`)
	if err != nil {
		log.Printf("[ADMIN] Failed to list staff: %v", err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch staff", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	staff := []StaffMember{}
	for rows.Next() {
		var m StaffMember
		if err := rows.Scan(&m.ID, &m.Email, &m.DisplayName, &m.LastLogin); err != nil {
			SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch staff", http.StatusInternalServerError, nil)
			return
		}
		staff = append(staff, m)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch staff", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"staff":       staff,
	})
}

// GetAnalytics returns program totals
// @Summary Program analytics
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{return_code=string,analytics=Analytics}
// @Failure 403 {object} ErrorResponse
// @Router /admin/analytics [get]
func (s *AdminService) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	var a Analytics
	err := s.db.QueryRowContext(r.Context(), `
		SELECT
			(SELECT COUNT(*) FROM users WHERE staff = false),
			COALESCE((SELECT SUM(points_amount) FROM point_transactions WHERE points_amount > 0), 0),
			COALESCE((SELECT -SUM(points_amount) FROM point_transactions WHERE points_amount < 0), 0),
			(SELECT COUNT(*) FROM rewards WHERE is_active = true),
			(SELECT COUNT(*) FROM point_transactions
				WHERE points_amount > 0 AND transaction_date >= CURRENT_DATE)
	`).Scan(&a.TotalCustomers, &a.PointsIssued, &a.PointsRedeemed, &a.ActiveRewards, &a.ScansToday)
	if err != nil {
		log.Printf("[ADMIN] Analytics query failed: %v", err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch analytics", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code": "SUCCESS",
		"analytics":   a,
	})
}

// GetRecentActivity returns the newest transactions across all customers
// @Summary Recent activity
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max rows (default 50)"
// @Success 200 {object} object{return_code=string,transactions=[]ActivityEntry}
// @Failure 403 {object} ErrorResponse
// @Router /admin/transactions [get]
func (s *AdminService) GetRecentActivity(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			SendErrorResponse(w, "VALIDATION_ERROR", "Invalid limit", http.StatusBadRequest, nil)
			return
		}
		if parsed > 200 {
			parsed = 200
		}
		limit = parsed
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT pt.id,
			COALESCE(cu.display_name, cu.email),
			COALESCE(su.display_name, su.email, ''),
			pt.points_amount, pt.description, pt.transaction_date
		FROM point_transactions pt
		JOIN users cu ON pt.user_id = cu.id
		LEFT JOIN users su ON pt.scanned_by = su.id
		ORDER BY pt.transaction_date DESC
		LIMIT $1
	`, limit)
	if err != nil {
		log.Printf("[ADMIN] Activity query failed: %v", err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch activity", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	entries := []ActivityEntry{}
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.ID, &e.CustomerName, &e.StaffName, &e.PointsAmount, &e.Description, &e.TransactionDate); err != nil {
			SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch activity", http.StatusInternalServerError, nil)
			return
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch activity", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code":  "SUCCESS",
		"transactions": entries,
	})
}

// GetDashboard bundles analytics with the newest activity
// @Summary Dashboard snapshot
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{return_code=string,analytics=Analytics,recent_activity=[]ActivityEntry}
// @Failure 403 {object} ErrorResponse
// @Router /admin/dashboard [get]
func (s *AdminService) GetDashboard(w http.ResponseWriter, r *http.Request) {
	var a Analytics
	err := s.db.QueryRowContext(r.Context(), `
		SELECT
			(SELECT COUNT(*) FROM users WHERE staff = false),
			COALESCE((SELECT SUM(points_amount) FROM point_transactions WHERE points_amount > 0), 0),
			COALESCE((SELECT -SUM(points_amount) FROM point_transactions WHERE points_amount < 0), 0),
			(SELECT COUNT(*) FROM rewards WHERE is_active = true),
			(SELECT COUNT(*) FROM point_transactions
				WHERE points_amount > 0 AND transaction_date >= CURRENT_DATE)
	`).Scan(&a.TotalCustomers, &a.PointsIssued, &a.PointsRedeemed, &a.ActiveRewards, &a.ScansToday)
	if err != nil {
		log.Printf("[ADMIN] Dashboard query failed: %v", err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch dashboard", http.StatusInternalServerError, nil)
		return
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT pt.id,
			COALESCE(cu.display_name, cu.email),
			COALESCE(su.display_name, su.email, ''),
			pt.points_amount, pt.description, pt.transaction_date
		FROM point_transactions pt
		JOIN users cu ON pt.user_id = cu.id
		LEFT JOIN users su ON pt.scanned_by = su.id
		ORDER BY pt.transaction_date DESC
		LIMIT 10
	`)
	if err != nil {
		log.Printf("[ADMIN] Dashboard activity query failed: %v", err)
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch dashboard", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	recent := []ActivityEntry{}
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.ID, &e.CustomerName, &e.StaffName, &e.PointsAmount, &e.Description, &e.TransactionDate); err != nil {
			SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch dashboard", http.StatusInternalServerError, nil)
			return
		}
		recent = append(recent, e)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "SERVER_ERROR", "Failed to fetch dashboard", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"return_code":     "SUCCESS",
		"analytics":       a,
		"recent_activity": recent,
	})
}

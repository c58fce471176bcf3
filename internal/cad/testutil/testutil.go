package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/bitfantasy/paramcad/internal/cad/catalog"
	"github.com/bitfantasy/paramcad/internal/cad/entity"
	"github.com/bitfantasy/paramcad/internal/database"
	"github.com/bitfantasy/paramcad/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

const (
	JWTSecret = "paramcad-test-jwt-secret"
)

// TestEnv holds test environment resources
type TestEnv struct {
	DB      *gorm.DB
	Catalog *catalog.Catalog
	Router  *gin.Engine
	T       *testing.T
}

// projectRoot returns the project root directory by looking for go.mod
func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// loadEnv loads .env from the project root
func loadEnv() {
	root := projectRoot()
	if root != "" {
		godotenv.Load(filepath.Join(root, ".env"))
	}
}

// SetupTestDB opens a migrated SQLite database in the test's temp dir.
// The file is removed with the temp dir when the test completes.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	loadEnv()

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "paramcad_test.db"),
		Debug:  os.Getenv("PARAMCAD_TEST_SQL_DEBUG") == "1",
	}, nil)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

// CatalogPath returns the sample catalog shipped under configs/,
// or PARAMCAD_TEST_CATALOG when set.
func CatalogPath() string {
	loadEnv()
	if p := os.Getenv("PARAMCAD_TEST_CATALOG"); p != "" {
		return p
	}
	return filepath.Join(projectRoot(), "configs", "piece_catalog.json")
}

// LoadCatalog loads the sample catalog and fails the test if it is invalid
func LoadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New(CatalogPath())
	if err := c.Reload(); err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	return c
}

// SeedPieceTypes inserts every catalog piece and returns them keyed by code
func SeedPieceTypes(t *testing.T, db *gorm.DB, c *catalog.Catalog) map[string]entity.PieceType {
	t.Helper()
	if _, err := database.SeedPieceTypes(context.Background(), db, c); err != nil {
		t.Fatalf("Failed to seed piece types: %v", err)
	}
	var types []entity.PieceType
	if err := db.Find(&types).Error; err != nil {
		t.Fatalf("Failed to list piece types: %v", err)
	}
	byCode := make(map[string]entity.PieceType, len(types))
	for _, pt := range types {
		byCode[pt.Code] = pt
	}
	return byCode
}

// SeedDesign inserts a design for the given piece type
func SeedDesign(t *testing.T, db *gorm.DB, pieceTypeID, name string) entity.Design {
	t.Helper()
	d := entity.Design{
		ID:          uuid.New().String()[:32],
		PieceTypeID: pieceTypeID,
		Name:        name,
	}
	if err := db.Omit("PieceType").Create(&d).Error; err != nil {
		t.Fatalf("Failed to seed design: %v", err)
	}
	return d
}

// SetupEnv builds a database seeded from the sample catalog and an empty router
func SetupEnv(t *testing.T) *TestEnv {
	t.Helper()
	db := SetupTestDB(t)
	c := LoadCatalog(t)
	SeedPieceTypes(t, db, c)
	return &TestEnv{DB: db, Catalog: c, Router: SetupRouter(), T: t}
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates a route group protected by JWT middleware
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name string, roles ...string) string {
	if roles == nil {
		roles = []string{}
	}
	claims := jwt.MapClaims{
		"uid":   userID,
		"name":  name,
		"email": userID + "@example.com",
		"roles": roles,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
		"iat":   time.Now().Unix(),
		"nbf":   time.Now().Unix(),
		"iss":   "paramcad",
		"sub":   userID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, _ := token.SignedString([]byte(JWTSecret))
	return tokenStr
}

// DefaultTestToken returns a token for the default engineer
func DefaultTestToken() string {
	return GenerateTestToken("test-engineer", "Test Engineer", "engineer")
}

// DoRequest performs an HTTP request against the router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the standard API response envelope
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

// ResponseData returns the "data" object of the envelope, or nil
func ResponseData(w *httptest.ResponseRecorder) map[string]interface{} {
	data, _ := ParseResponse(w)["data"].(map[string]interface{})
	return data
}

// ResponseList returns the "data" array of the envelope, or nil
func ResponseList(w *httptest.ResponseRecorder) []interface{} {
	list, _ := ParseResponse(w)["data"].([]interface{})
	return list
}

// AssertStatus fails the test when the response code differs
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

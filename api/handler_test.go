package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hatlonely/dyntab/engine"
	"github.com/hatlonely/dyntab/store"
	"github.com/hatlonely/dyntab/tableconf"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	confs, err := tableconf.NewStoreWithOptions(&tableconf.StoreOptions{
		FilePath: filepath.Join(t.TempDir(), "table-configs.json"),
	})
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.NewStoreWithOptions(&store.Options{
		Driver:   "sqlite3",
		Database: ":memory:",
		MaxConns: 1,
		MaxIdle:  1,
	})
	if err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	NewHandler(engine.NewEngine(confs, st, nil), nil).RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		confs.Close()
		st.Close()
	})
	return ts
}

func productConfigJSON() string {
	return `{
		"name": "products",
		"config": {
			"displayName": "产品",
			"fields": {
				"id": {"type": "text", "primaryKey": true, "default": "auto"},
				"name": {"type": "text", "required": true},
				"price": {"type": "number", "format": "currency"},
				"inStock": {"type": "boolean", "default": true}
			}
		}
	}`
}

func doJSON(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var envelope map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, envelope
}

func createProductsTable(t *testing.T, ts *httptest.Server) {
	t.Helper()
	status, envelope := doJSON(t, http.MethodPost, ts.URL+"/table-configs", productConfigJSON())
	if status != http.StatusCreated || envelope["success"] != true {
		t.Fatalf("failed to create table: %d %v", status, envelope)
	}
}

func TestConfigRoutes(t *testing.T) {
	Convey("测试表配置接口", t, func() {
		ts := newTestServer(t)

		Convey("建表后配置可查询", func() {
			createProductsTable(t, ts)

			status, envelope := doJSON(t, http.MethodGet, ts.URL+"/table-configs?table=products", "")
			So(status, ShouldEqual, http.StatusOK)
			So(envelope["success"], ShouldEqual, true)
			data := envelope["data"].(map[string]any)
			So(data["displayName"], ShouldEqual, "产品")
		})

		Convey("重复建表返回 409", func() {
			createProductsTable(t, ts)

			status, envelope := doJSON(t, http.MethodPost, ts.URL+"/table-configs", productConfigJSON())
			So(status, ShouldEqual, http.StatusConflict)
			So(envelope["success"], ShouldEqual, false)
		})

		Convey("缺少 name 或 config 返回 400", func() {
			status, _ := doJSON(t, http.MethodPost, ts.URL+"/table-configs", `{"name": "x"}`)
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("非法配置被拒绝", func() {
			body := `{"name": "bad", "config": {"fields": {"a": {"type": "text"}}}}`
			status, envelope := doJSON(t, http.MethodPost, ts.URL+"/table-configs", body)
			So(status, ShouldNotEqual, http.StatusCreated)
			So(envelope["success"], ShouldEqual, false)
			So(envelope["error"], ShouldNotBeEmpty)
		})

		Convey("查询不存在的表配置返回 404", func() {
			status, envelope := doJSON(t, http.MethodGet, ts.URL+"/table-configs?table=ghost", "")
			So(status, ShouldEqual, http.StatusNotFound)
			So(envelope["success"], ShouldEqual, false)
		})

		Convey("删除配置同时删表", func() {
			createProductsTable(t, ts)

			status, _ := doJSON(t, http.MethodDelete, ts.URL+"/table-configs?table=products", "")
			So(status, ShouldEqual, http.StatusOK)

			status, _ = doJSON(t, http.MethodGet, ts.URL+"/table-configs?table=products", "")
			So(status, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRecordRoutes(t *testing.T) {
	Convey("测试记录接口", t, func() {
		ts := newTestServer(t)
		createProductsTable(t, ts)

		Convey("创建记录返回 201 和完整记录", func() {
			status, envelope := doJSON(t, http.MethodPost, ts.URL+"/tables/products",
				`{"name": "widget", "price": 9.5}`)
			So(status, ShouldEqual, http.StatusCreated)
			So(envelope["success"], ShouldEqual, true)
			data := envelope["data"].(map[string]any)
			So(data["name"], ShouldEqual, "widget")
			So(data["price"], ShouldEqual, 9.5)
			So(data["inStock"], ShouldEqual, true)
			So(data["id"], ShouldNotBeEmpty)
		})

		Convey("校验失败返回 400 和字段级错误", func() {
			status, envelope := doJSON(t, http.MethodPost, ts.URL+"/tables/products",
				`{"price": "not a number"}`)
			So(status, ShouldEqual, http.StatusBadRequest)
			So(envelope["success"], ShouldEqual, false)
			So(envelope["error"], ShouldEqual, "validation failed")
			data := envelope["data"].(map[string]any)
			So(data["errors"], ShouldNotBeNil)
			So(data["errors"].([]any), ShouldHaveLength, 2)
		})

		Convey("列表查询带过滤和单条查询", func() {
			for _, body := range []string{
				`{"name": "widget", "price": 1}`,
				`{"name": "gadget", "price": 2, "inStock": false}`,
			} {
				status, _ := doJSON(t, http.MethodPost, ts.URL+"/tables/products", body)
				So(status, ShouldEqual, http.StatusCreated)
			}

			status, envelope := doJSON(t, http.MethodGet, ts.URL+"/tables/products?inStock=true", "")
			So(status, ShouldEqual, http.StatusOK)
			data := envelope["data"].(map[string]any)
			So(data["total"], ShouldEqual, 1)
			records := data["records"].([]any)
			So(records, ShouldHaveLength, 1)
			first := records[0].(map[string]any)
			So(first["name"], ShouldEqual, "widget")

			status, envelope = doJSON(t, http.MethodGet,
				ts.URL+"/tables/products?id="+first["id"].(string), "")
			So(status, ShouldEqual, http.StatusOK)
			So(envelope["data"].(map[string]any)["name"], ShouldEqual, "widget")
		})

		Convey("更新记录需要 id 参数", func() {
			status, envelope := doJSON(t, http.MethodPut, ts.URL+"/tables/products", `{"price": 3}`)
			So(status, ShouldEqual, http.StatusBadRequest)
			So(envelope["error"], ShouldEqual, "id is required")
		})

		Convey("更新和删除的完整链路", func() {
			_, envelope := doJSON(t, http.MethodPost, ts.URL+"/tables/products",
				`{"name": "widget", "price": 1}`)
			id := envelope["data"].(map[string]any)["id"].(string)

			status, envelope := doJSON(t, http.MethodPut,
				ts.URL+"/tables/products?id="+id, `{"price": 42}`)
			So(status, ShouldEqual, http.StatusOK)
			So(envelope["data"].(map[string]any)["price"], ShouldEqual, 42)
			So(envelope["data"].(map[string]any)["name"], ShouldEqual, "widget")

			status, _ = doJSON(t, http.MethodDelete, ts.URL+"/tables/products?id="+id, "")
			So(status, ShouldEqual, http.StatusOK)

			status, _ = doJSON(t, http.MethodGet, ts.URL+"/tables/products?id="+id, "")
			So(status, ShouldEqual, http.StatusNotFound)
		})

		Convey("未配置的表返回 404", func() {
			status, _ := doJSON(t, http.MethodGet, ts.URL+"/tables/ghost", "")
			So(status, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestDynamicTableRoutes(t *testing.T) {
	Convey("测试表管理接口", t, func() {
		ts := newTestServer(t)
		createProductsTable(t, ts)

		Convey("统计接口返回行数", func() {
			status, _ := doJSON(t, http.MethodPost, ts.URL+"/tables/products", `{"name": "widget"}`)
			So(status, ShouldEqual, http.StatusCreated)

			status, envelope := doJSON(t, http.MethodGet, ts.URL+"/dynamic-tables/products", "")
			So(status, ShouldEqual, http.StatusOK)
			data := envelope["data"].(map[string]any)
			So(data["rowCount"], ShouldEqual, 1)
		})

		Convey("clear 动作清空数据", func() {
			status, _ := doJSON(t, http.MethodPost, ts.URL+"/tables/products", `{"name": "widget"}`)
			So(status, ShouldEqual, http.StatusCreated)

			status, _ = doJSON(t, http.MethodPatch, ts.URL+"/dynamic-tables/products",
				`{"action": "clear"}`)
			So(status, ShouldEqual, http.StatusOK)

			_, envelope := doJSON(t, http.MethodGet, ts.URL+"/tables/products", "")
			So(envelope["data"].(map[string]any)["total"], ShouldEqual, 0)
		})

		Convey("不支持的动作返回 400", func() {
			status, envelope := doJSON(t, http.MethodPatch, ts.URL+"/dynamic-tables/products",
				`{"action": "truncate"}`)
			So(status, ShouldEqual, http.StatusBadRequest)
			So(envelope["error"].(string), ShouldContainSubstring, "unsupported action")
		})

		Convey("删表接口", func() {
			status, _ := doJSON(t, http.MethodDelete, ts.URL+"/dynamic-tables/products", "")
			So(status, ShouldEqual, http.StatusOK)

			status, _ = doJSON(t, http.MethodGet, ts.URL+"/dynamic-tables/products", "")
			So(status, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestExportRoute(t *testing.T) {
	Convey("测试导出接口", t, func() {
		ts := newTestServer(t)
		createProductsTable(t, ts)

		status, _ := doJSON(t, http.MethodPost, ts.URL+"/tables/products",
			`{"name": "widget", "price": 9.5}`)
		So(status, ShouldEqual, http.StatusCreated)

		Convey("GET 导出返回 xlsx 流", func() {
			resp, err := http.Get(ts.URL + "/tables/products/export")
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldEqual,
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			So(resp.Header.Get("Content-Disposition"), ShouldContainSubstring, `products.xlsx`)

			var buf bytes.Buffer
			_, err = buf.ReadFrom(resp.Body)
			So(err, ShouldBeNil)
			// xlsx 本质是 zip，检查魔数
			So(strings.HasPrefix(buf.String(), "PK"), ShouldBeTrue)
		})

		Convey("POST 带查询条件导出", func() {
			resp, err := http.Post(ts.URL+"/tables/products/export", "application/json",
				strings.NewReader(`{"search": "widget", "sort": "name"}`))
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldEqual,
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		})

		Convey("POST 请求体不是合法 JSON 返回 400", func() {
			status, envelope := doJSON(t, http.MethodPost,
				ts.URL+"/tables/products/export", `{not json`)
			So(status, ShouldEqual, http.StatusBadRequest)
			So(envelope["success"], ShouldEqual, false)
			So(envelope["error"], ShouldEqual, "invalid request body")
		})
	})
}

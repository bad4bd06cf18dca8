package mock

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// User mirrors the JSONPlaceholder users resource.
type User struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Address  Address `json:"address"`
	Phone    string  `json:"phone"`
	Website  string  `json:"website"`
	Company  Company `json:"company"`
}

type Address struct {
	Street  string `json:"street"`
	Suite   string `json:"suite"`
	City    string `json:"city"`
	Zipcode string `json:"zipcode"`
}

type Company struct {
	Name        string `json:"name"`
	CatchPhrase string `json:"catchPhrase"`
}

// Users is the fixed users fixture. Writes never change it, like the public
// service it imitates; a created user always gets the next free ID.
var Users = []User{
	{1, "Leanne Graham", "Bret", "Sincere@april.biz", Address{"Kulas Light", "Apt. 556", "Gwenborough", "92998-3874"}, "1-770-736-8031 x56442", "hildegard.org", Company{"Romaguera-Crona", "Multi-layered client-server neural-net"}},
	{2, "Ervin Howell", "Antonette", "Shanna@melissa.tv", Address{"Victor Plains", "Suite 879", "Wisokyburgh", "90566-7771"}, "010-692-6593 x09125", "anastasia.net", Company{"Deckow-Crist", "Proactive didactic contingency"}},
	{3, "Clementine Bauch", "Samantha", "Nathan@yesenia.net", Address{"Douglas Extension", "Suite 847", "McKenziehaven", "59590-4157"}, "1-463-123-4447", "ramiro.info", Company{"Romaguera-Jacobson", "Face to face bifurcated interface"}},
	{4, "Patricia Lebsack", "Karianne", "Julianne.OConner@kory.org", Address{"Hoeger Mall", "Apt. 692", "South Elvis", "53919-4257"}, "493-170-9623 x156", "kale.biz", Company{"Robel-Corkery", "Multi-tiered zero tolerance productivity"}},
	{5, "Chelsey Dietrich", "Kamren", "Lucio_Hettinger@annie.ca", Address{"Skiles Walks", "Suite 351", "Roscoeview", "33263"}, "(254)954-1289", "demarco.info", Company{"Keebler LLC", "User-centric fault-tolerant solution"}},
	{6, "Mrs. Dennis Schulist", "Leopoldo_Corkery", "Karley_Dach@jasper.info", Address{"Norberto Crossing", "Apt. 950", "South Christy", "23505-1337"}, "1-477-935-8478 x6430", "ola.org", Company{"Considine-Lockman", "Synchronised bottom-line interface"}},
	{7, "Kurtis Weissnat", "Elwyn.Skiles", "Telly.Hoeger@billy.biz", Address{"Rex Trail", "Suite 280", "Howemouth", "58804-1099"}, "210.067.6132", "elvis.io", Company{"Johns Group", "Configurable multimedia task-force"}},
	{8, "Nicholas Runolfsdottir V", "Maxime_Nienow", "Sherwood@rosamond.me", Address{"Ellsworth Summit", "Suite 729", "Aliyaview", "45169"}, "586.493.6943 x140", "jacynthe.com", Company{"Abernathy Group", "Implemented secondary concept"}},
	{9, "Glenna Reichert", "Delphine", "Chaim_McDermott@dana.io", Address{"Dayna Park", "Suite 449", "Bartholomebury", "76495-3109"}, "(775)976-6794 x41206", "conrad.com", Company{"Yost and Sons", "Switchable contextually-based project"}},
	{10, "Clementina DuBuque", "Moriah.Stanton", "Rey.Padberg@karina.biz", Address{"Kattie Turnpike", "Suite 198", "Lebsackbury", "31428-2261"}, "024-648-3804", "ambrose.net", Company{"Hoeger LLC", "Centralized empowering task-force"}},
}

// empty is what the service returns for unknown IDs and deletes.
var empty = map[string]any{}

// registerUsers wires the users resource into r.
func registerUsers(r *Router) {
	r.Handle("GET", "/users", "list-users", listUsers)
	r.Handle("POST", "/users", "create-user", createUser)
	r.Handle("GET", "/users/{id}", "get-user", getUser)
	r.Handle("PUT", "/users/{id}", "replace-user", replaceUser)
	r.Handle("PATCH", "/users/{id}", "update-user", updateUser)
	r.Handle("DELETE", "/users/{id}", "delete-user", deleteUser)
}

func findUser(id string) (User, bool) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return User{}, false
	}
	for _, u := range Users {
		if u.ID == n {
			return u, true
		}
	}
	return User{}, false
}

// listUsers supports exact-match filters on top-level fields, e.g.
// ?username=Bret.
func listUsers(r *http.Request, _ map[string]string) (int, any) {
	query := r.URL.Query()
	out := make([]map[string]any, 0, len(Users))
	for _, u := range Users {
		m := toMap(u)
		if matchesQuery(m, query) {
			out = append(out, m)
		}
	}
	return http.StatusOK, out
}

func matchesQuery(m map[string]any, query map[string][]string) bool {
	for key, values := range query {
		v, ok := m[key]
		if !ok {
			continue
		}
		got := formatScalar(v)
		matched := false
		for _, want := range values {
			if got == want {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func formatScalar(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		data, _ := json.Marshal(val)
		return string(data)
	}
}

func getUser(_ *http.Request, params map[string]string) (int, any) {
	u, ok := findUser(params["id"])
	if !ok {
		return http.StatusNotFound, empty
	}
	return http.StatusOK, toMap(u)
}

func createUser(r *http.Request, _ map[string]string) (int, any) {
	body, ok := decodeBody(r)
	if !ok {
		return http.StatusBadRequest, map[string]any{"error": "invalid JSON body"}
	}
	body["id"] = len(Users) + 1
	return http.StatusCreated, body
}

// replaceUser fails with 500 for unknown IDs, as the public service does.
func replaceUser(r *http.Request, params map[string]string) (int, any) {
	u, ok := findUser(params["id"])
	if !ok {
		return http.StatusInternalServerError, map[string]any{"error": "cannot read properties of undefined (reading 'id')"}
	}
	body, ok := decodeBody(r)
	if !ok {
		return http.StatusBadRequest, map[string]any{"error": "invalid JSON body"}
	}
	body["id"] = u.ID
	return http.StatusOK, body
}

func updateUser(r *http.Request, params map[string]string) (int, any) {
	body, ok := decodeBody(r)
	if !ok {
		return http.StatusBadRequest, map[string]any{"error": "invalid JSON body"}
	}
	merged := map[string]any{}
	if u, found := findUser(params["id"]); found {
		merged = toMap(u)
	}
	for k, v := range body {
		merged[k] = v
	}
	return http.StatusOK, merged
}

func deleteUser(_ *http.Request, _ map[string]string) (int, any) {
	return http.StatusOK, empty
}

func decodeBody(r *http.Request) (map[string]any, bool) {
	body := map[string]any{}
	if r.Body == nil {
		return body, true
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, false
	}
	return body, true
}

func toMap(u User) map[string]any {
	data, _ := json.Marshal(u)
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return m
}

// idOf is used by the verbose log to show which user a request touched.
func idOf(params map[string]string) string {
	if id := params["id"]; id != "" {
		return "#" + strings.TrimSpace(id)
	}
	return ""
}

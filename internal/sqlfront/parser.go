package sqlfront

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/daniilsunyaev/yarrd/internal/dberrors"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

// Parser walks a token stream produced by the Lexer and builds a
// Statement. One Parser instance is single-use, matching the teacher's
// one-Parse-call-per-statement shape.
type Parser struct {
	toks []Token
	pos  int
}

// Parse parses one SQL statement (no trailing semicolon, per spec.md
// §6) into its Statement AST.
func Parse(query string) (Statement, error) {
	q := strings.TrimSpace(query)
	if strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(q[:len(q)-1])
	}
	if q == "" {
		return nil, fmt.Errorf("%w: empty statement", dberrors.ErrParse)
	}
	toks, err := Tokenize(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dberrors.ErrParse, err)
	}
	p := &Parser{toks: toks}

	kw := strings.ToUpper(p.peek().Text)
	switch kw {
	case "CREATE":
		return p.parseCreate()
	case "DROP":
		return p.parseDrop()
	case "INSERT":
		return p.parseInsert()
	case "SELECT":
		return p.parseSelect()
	case "UPDATE":
		return p.parseUpdate()
	case "DELETE":
		return p.parseDelete()
	case "ALTER":
		return p.parseAlter()
	case "VACUUM":
		p.next()
		return &VacuumStmt{}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected statement start %q", dberrors.ErrParse, p.peek().Text)
	}
}

func (p *Parser) peek() Token {
	if p.pos >= len(p.toks) {
		return Token{Kind: TokEOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) next() Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) isKeyword(s string) bool {
	t := p.peek()
	return t.Kind == TokIdent && strings.EqualFold(t.Text, s)
}

func (p *Parser) expectKeyword(s string) error {
	if !p.isKeyword(s) {
		return fmt.Errorf("%w: expected %q, got %q", dberrors.ErrParse, s, p.peek().Text)
	}
	p.next()
	return nil
}

func (p *Parser) expectSymbol(s string) error {
	t := p.peek()
	if t.Kind != TokSymbol || t.Text != s {
		return fmt.Errorf("%w: expected %q, got %q", dberrors.ErrParse, s, t.Text)
	}
	p.next()
	return nil
}

func (p *Parser) expectIdent() (string, error) {
	t := p.peek()
	if t.Kind != TokIdent {
		return "", fmt.Errorf("%w: expected identifier, got %q", dberrors.ErrParse, t.Text)
	}
	p.next()
	return t.Text, nil
}

// --- CREATE TABLE / CREATE INDEX ---

func (p *Parser) parseCreate() (Statement, error) {
	p.next() // CREATE
	if p.isKeyword("TABLE") {
		p.next()
		return p.parseCreateTableBody()
	}
	if p.isKeyword("INDEX") {
		p.next()
		return p.parseCreateIndexBody()
	}
	return nil, fmt.Errorf("%w: expected TABLE or INDEX after CREATE", dberrors.ErrParse)
}

func (p *Parser) parseCreateTableBody() (Statement, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}

	var cols []ColumnDef
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.peek().Kind == TokSymbol && p.peek().Text == "," {
			p.next()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: CREATE TABLE with no columns", dberrors.ErrParse)
	}
	return &CreateTableStmt{TableName: name, Columns: cols}, nil
}

func (p *Parser) parseColumnDef() (ColumnDef, error) {
	name, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, err
	}
	typeName, err := p.expectIdent()
	if err != nil {
		return ColumnDef{}, err
	}
	colType, err := parseColumnType(typeName)
	if err != nil {
		return ColumnDef{}, err
	}

	var constraints []types.Constraint
	for {
		switch {
		case p.isKeyword("NOT"):
			p.next()
			if err := p.expectKeyword("NULL"); err != nil {
				return ColumnDef{}, err
			}
			constraints = append(constraints, types.Constraint{Kind: types.NotNull})
		case p.isKeyword("DEFAULT"):
			p.next()
			lit, err := p.parseLiteral()
			if err != nil {
				return ColumnDef{}, err
			}
			constraints = append(constraints, types.Constraint{Kind: types.Default, Literal: lit})
		case p.isKeyword("CHECK"):
			p.next()
			expr, err := p.parseCheckExpr()
			if err != nil {
				return ColumnDef{}, err
			}
			constraints = append(constraints, types.Constraint{Kind: types.Check, CheckExpr: expr})
		default:
			return ColumnDef{Name: name, Type: colType, Constraints: constraints}, nil
		}
	}
}

// parseCheckExpr parses `(col op literal)`.
func (p *Parser) parseCheckExpr() (*types.CheckExpr, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	op, err := p.parseCompareOp()
	if err != nil {
		return nil, err
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &types.CheckExpr{Column: col, Op: op, Literal: lit}, nil
}

func (p *Parser) parseCreateIndexBody() (Statement, error) {
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return &CreateIndexStmt{TableName: table, Column: col}, nil
}

// --- DROP TABLE / DROP INDEX ---

func (p *Parser) parseDrop() (Statement, error) {
	p.next() // DROP
	if p.isKeyword("TABLE") {
		p.next()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &DropTableStmt{TableName: name}, nil
	}
	if p.isKeyword("INDEX") {
		p.next()
		if err := p.expectKeyword("ON"); err != nil {
			return nil, err
		}
		table, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &DropIndexStmt{TableName: table, Column: col}, nil
	}
	return nil, fmt.Errorf("%w: expected TABLE or INDEX after DROP", dberrors.ErrParse)
}

// --- INSERT ---

func (p *Parser) parseInsert() (Statement, error) {
	p.next() // INSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var columns []string
	if p.peek().Kind == TokSymbol && p.peek().Text == "(" {
		p.next()
		for {
			c, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			columns = append(columns, c)
			if p.peek().Kind == TokSymbol && p.peek().Text == "," {
				p.next()
				continue
			}
			break
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var values []types.Value
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		if p.peek().Kind == TokSymbol && p.peek().Text == "," {
			p.next()
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	return &InsertStmt{TableName: table, Columns: columns, Values: values}, nil
}

// --- SELECT ---

func (p *Parser) parseSelect() (Statement, error) {
	p.next() // SELECT

	var projection []string
	if p.peek().Kind == TokSymbol && p.peek().Text == "*" {
		p.next()
		if p.peek().Kind == TokSymbol && p.peek().Text == "," {
			// "SELECT *, id" repeats the column per spec.md §9.
			projection = append(projection, "*")
			for p.peek().Kind == TokSymbol && p.peek().Text == "," {
				p.next()
				c, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				projection = append(projection, c)
			}
		}
	} else {
		for {
			c, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			projection = append(projection, c)
			if p.peek().Kind == TokSymbol && p.peek().Text == "," {
				p.next()
				continue
			}
			break
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}

	return &SelectStmt{TableName: table, Projection: projection, Where: where}, nil
}

// --- UPDATE ---

func (p *Parser) parseUpdate() (Statement, error) {
	p.next() // UPDATE
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("SET"); err != nil {
		return nil, err
	}

	var sets []SetClause
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		sets = append(sets, SetClause{Column: col, Value: val})
		if p.peek().Kind == TokSymbol && p.peek().Text == "," {
			p.next()
			continue
		}
		break
	}

	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}
	return &UpdateStmt{TableName: table, Set: sets, Where: where}, nil
}

// --- DELETE ---

func (p *Parser) parseDelete() (Statement, error) {
	p.next() // DELETE
	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	where, err := p.parseOptionalWhere()
	if err != nil {
		return nil, err
	}
	return &DeleteStmt{TableName: table, Where: where}, nil
}

// --- ALTER TABLE ---

func (p *Parser) parseAlter() (Statement, error) {
	p.next() // ALTER
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	switch {
	case p.isKeyword("RENAME"):
		p.next()
		if p.isKeyword("TO") {
			p.next()
			newName, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return &AlterTableStmt{TableName: table, Action: AlterRenameTable, NewName: newName}, nil
		}
		if err := p.expectKeyword("COLUMN"); err != nil {
			return nil, err
		}
		oldCol, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("TO"); err != nil {
			return nil, err
		}
		newCol, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		return &AlterTableStmt{TableName: table, Action: AlterRenameColumn, OldColumn: oldCol, NewColumn: newCol}, nil

	case p.isKeyword("ADD"):
		p.next()
		if p.isKeyword("CONSTRAINT") {
			p.next()
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol("("); err != nil {
				return nil, err
			}
			onCol, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			cons, err := p.parseConstraintByName(col)
			if err != nil {
				return nil, err
			}
			return &AlterTableStmt{TableName: table, Action: AlterAddConstraint, OldColumn: onCol, Constraint: cons}, nil
		}
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		return &AlterTableStmt{TableName: table, Action: AlterAddColumn, Column: col}, nil

	case p.isKeyword("DROP"):
		p.next()
		if p.isKeyword("COLUMN") {
			p.next()
			col, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			return &AlterTableStmt{TableName: table, Action: AlterDropColumn, DropCol: col}, nil
		}
		if err := p.expectKeyword("CONSTRAINT"); err != nil {
			return nil, err
		}
		kindName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		kind, err := parseConstraintKindName(kindName)
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		onCol, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &AlterTableStmt{TableName: table, Action: AlterDropConstraint, OldColumn: onCol, ConstraintOf: kind}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported ALTER TABLE form", dberrors.ErrParse)
	}
}

// parseConstraintByName builds a bare (no-payload or CHECK-less)
// constraint from its keyword name, used by ADD CONSTRAINT NOT_NULL(col).
func (p *Parser) parseConstraintByName(name string) (types.Constraint, error) {
	kind, err := parseConstraintKindName(name)
	if err != nil {
		return types.Constraint{}, err
	}
	return types.Constraint{Kind: kind}, nil
}

func parseConstraintKindName(name string) (types.ConstraintKind, error) {
	switch strings.ToUpper(name) {
	case "NOT_NULL", "NOTNULL":
		return types.NotNull, nil
	case "CHECK":
		return types.Check, nil
	case "DEFAULT":
		return types.Default, nil
	default:
		return 0, fmt.Errorf("%w: unknown constraint kind %q", dberrors.ErrParse, name)
	}
}

// --- shared: WHERE, literals, types, compare ops ---

func (p *Parser) parseOptionalWhere() (*WhereClause, error) {
	if !p.isKeyword("WHERE") {
		return nil, nil
	}
	p.next()
	col, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("IS") {
		p.next()
		negate := false
		if p.isKeyword("NOT") {
			p.next()
			negate = true
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return &WhereClause{Column: col, IsNullTest: true, NegateIsNull: negate}, nil
	}

	op, err := p.parseCompareOp()
	if err != nil {
		return nil, err
	}
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	return &WhereClause{Column: col, Op: op, Literal: lit}, nil
}

func (p *Parser) parseCompareOp() (types.CompareOp, error) {
	t := p.peek()
	if t.Kind != TokSymbol {
		return 0, fmt.Errorf("%w: expected comparison operator, got %q", dberrors.ErrParse, t.Text)
	}
	p.next()
	switch t.Text {
	case "=":
		return types.Eq, nil
	case "<>":
		return types.Neq, nil
	case "<":
		return types.Lt, nil
	case "<=":
		return types.Lte, nil
	case ">":
		return types.Gt, nil
	case ">=":
		return types.Gte, nil
	default:
		return 0, fmt.Errorf("%w: unknown comparison operator %q", dberrors.ErrParse, t.Text)
	}
}

func (p *Parser) parseLiteral() (types.Value, error) {
	t := p.peek()
	switch t.Kind {
	case TokString:
		p.next()
		return types.NewString(t.Text), nil
	case TokNumber:
		p.next()
		if strings.Contains(t.Text, ".") {
			f, err := strconv.ParseFloat(t.Text, 64)
			if err != nil {
				return types.Value{}, fmt.Errorf("%w: bad float literal %q", dberrors.ErrParse, t.Text)
			}
			return types.NewFloat(f), nil
		}
		i, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return types.Value{}, fmt.Errorf("%w: bad integer literal %q", dberrors.ErrParse, t.Text)
		}
		return types.NewInt(i), nil
	case TokIdent:
		if strings.EqualFold(t.Text, "NULL") {
			p.next()
			return types.Value{IsNull: true}, nil
		}
		return types.Value{}, fmt.Errorf("%w: expected literal, got identifier %q", dberrors.ErrParse, t.Text)
	default:
		return types.Value{}, fmt.Errorf("%w: expected literal, got %q", dberrors.ErrParse, t.Text)
	}
}

func parseColumnType(name string) (types.ColumnType, error) {
	switch strings.ToUpper(name) {
	case "INT", "INTEGER":
		return types.Integer, nil
	case "FLOAT", "DOUBLE", "REAL":
		return types.Float, nil
	case "STRING", "TEXT", "VARCHAR":
		return types.String, nil
	default:
		return 0, fmt.Errorf("%w: unknown column type %q", dberrors.ErrParse, name)
	}
}

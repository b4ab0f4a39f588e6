package main

import (
	"flag"
	"fmt"
	"os"

	"library-circulation/library"
)

// Seeds a fresh database with the default accounts and a starter catalog so
// the CLI is usable straight away. Destructive: removes any existing database
// at the target path first.

type seedBook struct {
	title    string
	author   string
	year     int
	isbn     string
	category string
	copies   int
}

var starterCatalog = []seedBook{
	{"1984", "George Orwell", 1949, "9780451524935", "Fiction", 3},
	{"Animal Farm", "George Orwell", 1945, "9780452284241", "Fiction", 2},
	{"The Diary of a Young Girl", "Anne Frank", 1947, "9780553296983", "Biography", 2},
	{"The Art of War", "Sun Tzu", 0, "9781590302255", "Philosophy", 1},
	{"The Fellowship of the Ring", "J.R.R. Tolkien", 1954, "9780547928210", "Fantasy", 3},
	{"The Two Towers", "J.R.R. Tolkien", 1954, "9780547928203", "Fantasy", 3},
	{"The Return of the King", "J.R.R. Tolkien", 1955, "9780547928197", "Fantasy", 3},
	{"Harry Potter and the Philosopher's Stone", "J.K. Rowling", 1997, "9780747532699", "Fantasy", 5},
	{"Harry Potter and the Chamber of Secrets", "J.K. Rowling", 1998, "9780747538493", "Fantasy", 4},
	{"Harry Potter and the Prisoner of Azkaban", "J.K. Rowling", 1999, "9780747542155", "Fantasy", 4},
	{"Romeo and Juliet", "William Shakespeare", 1597, "9780743477116", "Drama", 2},
	{"The Three Musketeers", "Alexandre Dumas", 1844, "9780140367470", "Adventure", 2},
}

func main() {
	dbPath := flag.String("db", "library.db", "database path to create")
	flag.Parse()

	fmt.Println("Removing any existing database files...")
	for _, suffix := range []string{"", "-shm", "-wal"} {
		file := *dbPath + suffix
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			fmt.Printf("Warning: could not remove %s: %v\n", file, err)
		}
	}

	cfg := library.DefaultConfig()
	cfg.DBPath = *dbPath
	lib, err := library.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating database: %v\n", err)
		os.Exit(1)
	}
	defer lib.Close()

	fmt.Println("Creating default accounts...")
	adminID, err := lib.CreateUser("admin", "admin123", library.RoleLibrarian, "System Administrator", "admin@library.local")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating librarian account: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  librarian 'admin' created (user %d)\n", adminID)

	member, err := lib.RegisterMember(library.RegisterMemberParams{
		Username:    "student",
		Password:    "student123",
		StudentID:   "STU0001",
		Name:        "Demo Student",
		Email:       "student@library.local",
		Department:  "Computer Science",
		YearOfStudy: 1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating demo member: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  member 'student' created (member %d)\n", member.ID)

	fmt.Println("Importing starter catalog...")
	successCount := 0
	for _, sb := range starterCatalog {
		_, err := lib.AddBook(library.Book{
			Title:    sb.title,
			Author:   sb.author,
			Year:     sb.year,
			ISBN:     sb.isbn,
			Category: sb.category,
			Location: "Main Stacks",
			Quantity: sb.copies,
		})
		if err != nil {
			fmt.Printf("  failed: %s: %v\n", sb.title, err)
			continue
		}
		fmt.Printf("  added: %s by %s (%d copies)\n", sb.title, sb.author, sb.copies)
		successCount++
	}

	fmt.Printf("\nSeed complete: %d/%d books imported into %s\n", successCount, len(starterCatalog), *dbPath)
	fmt.Println("Default logins: admin/admin123 (librarian), student/student123 (member)")
}
